package admission

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
	patient.POST("/hospitals/:id/admissions", h.Intake)
	patient.GET("/me/admissions", h.ListMine)
	patient.GET("/me/admissions/:id", h.GetMine)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin), db.RequireTenant())
	admin.GET("/admissions", h.List)
	admin.POST("/admissions/:id/approve", h.Approve)
	admin.POST("/admissions/:id/reject", h.Reject)
	admin.POST("/admissions/:id/transfer", h.TransferWard)
	admin.GET("/treatments/unseen", h.UnseenTreatments)
	admin.POST("/treatments/seen", h.MarkTreatmentsSeen)

	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor), db.RequireTenant())
	staff.GET("/admissions/:id", h.Get)
	staff.POST("/admissions/:id/discharge", h.Discharge)
	staff.GET("/admissions/:id/treatments", h.Treatments)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor), db.RequireTenant())
	doctor.GET("/doctor/admissions", h.ListForDoctor)
	doctor.GET("/doctor/admissions/unseen", h.UnseenForDoctor)
	doctor.POST("/doctor/admissions/seen", h.MarkSeenByDoctor)
	doctor.POST("/admissions/:id/treatments", h.RecordTreatment)
}

type intakeRequest struct {
	PatientName           string     `json:"patient_name" validate:"required,max=200"`
	PatientAge            int        `json:"patient_age" validate:"gte=0,lte=150"`
	Gender                string     `json:"gender" validate:"required"`
	ContactNumber         string     `json:"contact_number" validate:"required,phone"`
	Email                 *string    `json:"email" validate:"omitempty,email"`
	AdmissionDate         string     `json:"admission_date" validate:"omitempty,datetime=2006-01-02"`
	ReasonSymptoms        string     `json:"reason_symptoms" validate:"required"`
	ReferringDoctorID     *uuid.UUID `json:"referring_doctor_id"`
	OPDAppointmentID      *uuid.UUID `json:"opd_appointment_id"`
	InsuranceProvider     *string    `json:"insurance_provider"`
	InsurancePolicyNumber *string    `json:"insurance_policy_number"`
	PaymentMode           *string    `json:"payment_mode"`
	GuardianName          *string    `json:"guardian_name"`
	GuardianRelationship  *string    `json:"guardian_relationship"`
	GuardianContactNumber *string    `json:"guardian_contact_number" validate:"omitempty,phone"`
	SpecialInstructions   *string    `json:"special_instructions"`
	Allergies             *string    `json:"allergies"`
	PastSurgeries         *string    `json:"past_surgeries"`
	CurrentMedications    *string    `json:"current_medications"`
}

func (r intakeRequest) admission() *Admission {
	return &Admission{
		PatientName:           r.PatientName,
		PatientAge:            r.PatientAge,
		Gender:                r.Gender,
		ContactNumber:         r.ContactNumber,
		Email:                 r.Email,
		AdmissionDate:         r.AdmissionDate,
		ReasonSymptoms:        r.ReasonSymptoms,
		ReferringDoctorID:     r.ReferringDoctorID,
		OPDAppointmentID:      r.OPDAppointmentID,
		InsuranceProvider:     r.InsuranceProvider,
		InsurancePolicyNumber: r.InsurancePolicyNumber,
		PaymentMode:           r.PaymentMode,
		GuardianName:          r.GuardianName,
		GuardianRelationship:  r.GuardianRelationship,
		GuardianContactNumber: r.GuardianContactNumber,
		SpecialInstructions:   r.SpecialInstructions,
		Allergies:             r.Allergies,
		PastSurgeries:         r.PastSurgeries,
		CurrentMedications:    r.CurrentMedications,
	}
}

func (h *Handler) Intake(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	hid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	var req intakeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a := req.admission()
	if err := h.svc.Intake(c.Request().Context(), hid, patientID, a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListMine(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMine(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetForPatient(c.Request().Context(), patientID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByHospital(c.Request().Context(), hid, c.QueryParam("status"), pg.Limit, pg.Offset)
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
	a, err := h.svc.Get(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type approveRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
}

func (h *Handler) Approve(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Approve(c.Request().Context(), hid, id, req.DoctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reject(c.Request().Context(), hid, id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Discharge(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Discharge(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type transferRequest struct {
	BedPartitionID uuid.UUID `json:"bed_partition_id" validate:"required"`
}

func (h *Handler) TransferWard(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.TransferWard(c.Request().Context(), hid, id, req.BedPartitionID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RecordTreatment(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	doctorID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req Treatment
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	entry, err := h.svc.RecordTreatment(c.Request().Context(), hid, id, doctorID, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) Treatments(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Treatments(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*TreatmentEntry{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), hid, doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UnseenForDoctor(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnseenForDoctor(c.Request().Context(), hid, doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unseen": n})
}

func (h *Handler) MarkSeenByDoctor(c echo.Context) error {
	hid, doctorID, err := doctorScope(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkSeenByDoctor(c.Request().Context(), hid, doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked": n})
}

func (h *Handler) UnseenTreatments(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnseenTreatments(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unseen": n})
}

func (h *Handler) MarkTreatmentsSeen(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkTreatmentsSeen(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked": n})
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
