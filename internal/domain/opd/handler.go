package opd

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/auth"
	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.GET("/hospitals/:id/doctors/:doctor_id/slots", h.PublicSlots)
	patient.POST("/hospitals/:id/opd/appointments", h.Book)
	patient.GET("/me/opd/appointments", h.Upcoming)
	patient.GET("/me/opd/appointments/:id/queue", h.Queue)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin), db.RequireTenant())
	admin.POST("/opd/slots/generate", h.Generate)
	admin.GET("/opd/appointments", h.List)

	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor), db.RequireTenant())
	staff.GET("/opd/appointments/:id", h.Get)
	staff.GET("/opd/appointments/:id/prescriptions", h.Prescriptions)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor), db.RequireTenant())
	doctor.GET("/doctor/slots", h.ListSlots)
	doctor.POST("/doctor/slots", h.CreateSlot)
	doctor.PUT("/doctor/slots/:id", h.UpdateSlot)
	doctor.DELETE("/doctor/slots/:id", h.DeleteSlot)
	doctor.GET("/doctor/opd/appointments", h.ListForDoctor)
	doctor.GET("/doctor/opd/bill-pending", h.BillPending)
	doctor.PUT("/doctor/opd/appointments/:id/status", h.UpdateStatus)
	doctor.POST("/doctor/opd/appointments/:id/prescriptions", h.AddPrescription)
}

func (h *Handler) PublicSlots(c echo.Context) error {
	hid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	doctorID, err := uuid.Parse(c.Param("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	items, err := h.svc.ListSlots(c.Request().Context(), hid, doctorID, c.QueryParam("date"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) Book(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	hid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	var req Booking
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), hid, patientID, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Upcoming(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	items, err := h.svc.Upcoming(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Queue(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	q, err := h.svc.QueueForPatient(c.Request().Context(), patientID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, q)
}

type generateRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id" validate:"required"`
	StartTime string    `json:"start_time" validate:"omitempty,clock"`
	EndTime   string    `json:"end_time" validate:"omitempty,clock"`
	FromDate  string    `json:"from_date" validate:"required,datetime=2006-01-02"`
	Days      int       `json:"days" validate:"gte=1,lte=31"`
}

func (h *Handler) Generate(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	req := generateRequest{Days: WindowDays}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	n, err := h.svc.Generate(c.Request().Context(), hid, req.DoctorID, req.StartTime, req.EndTime, req.FromDate, req.Days)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]int{"created": n})
}

func (h *Handler) List(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), hid, c.QueryParam("date"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Prescriptions(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Prescriptions(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListSlots(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListSlots(c.Request().Context(), hid, doctorID, c.QueryParam("date"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

type slotRequest struct {
	SlotDate  string `json:"slot_date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

func (h *Handler) CreateSlot(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	slot, err := h.svc.CreateSlot(c.Request().Context(), hid, doctorID, req.SlotDate, req.StartTime, req.EndTime)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, slot)
}

type slotTimesRequest struct {
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req slotTimesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	slot, err := h.svc.UpdateSlot(c.Request().Context(), hid, doctorID, id, req.StartTime, req.EndTime)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), hid, doctorID, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), hid, doctorID, c.QueryParam("date"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) BillPending(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.BillPending(c.Request().Context(), hid, doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, items)
}

type statusRequest struct {
	Status         string `json:"status" validate:"required,oneof=Completed Cancelled Referred"`
	ReferralReason string `json:"referral_reason"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), hid, doctorID, id, req.Status, req.ReferralReason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type prescriptionRequest struct {
	Details string `json:"details" validate:"required"`
}

func (h *Handler) AddPrescription(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req prescriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.svc.AddPrescription(c.Request().Context(), hid, doctorID, id, req.Details)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func nonNil(items []*Slot) []*Slot {
	if items == nil {
		return []*Slot{}
	}
	return items
}

func scopedID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	hid, err := db.HospitalID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return hid, id, nil
}

func doctorScope(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	hid, err := db.HospitalID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	doctorID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return hid, doctorID, nil
}
