package billing

import (
	"bytes"
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
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor), db.RequireTenant())
	doctor.POST("/doctor/opd/appointments/:id/bill", h.GenerateOPDBill)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin), db.RequireTenant())
	admin.POST("/opd/appointments/:id/payment", h.PayOPDBill)
	admin.POST("/admissions/:id/bill", h.GenerateHospitalizationBill)
	admin.GET("/bills", h.List)
	admin.GET("/bills/:id", h.Get)
	admin.POST("/bills/:id/confirm-cash", h.ConfirmCash)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.GET("/me/bills", h.ListMine)
	patient.GET("/me/bills/unseen", h.Unseen)
	patient.POST("/me/bills/seen", h.MarkSeen)
	patient.GET("/me/bills/:id", h.GetMine)
	patient.POST("/me/bills/:id/pay", h.Pay)
	patient.GET("/me/bills/:id/upi-qr", h.UPIQR)
}

func (h *Handler) GenerateOPDBill(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	doctorID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req OPDCharges
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.GenerateOPDBill(c.Request().Context(), hid, doctorID, id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type paymentRequest struct {
	PaymentMode   string `json:"payment_mode" validate:"required,oneof=cash upi"`
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) PayOPDBill(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.PayOPDBill(c.Request().Context(), hid, id, req.PaymentMode)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GenerateHospitalizationBill(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	var req Charges
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, err := h.svc.GenerateHospitalizationBill(c.Request().Context(), hid, id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
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
	b, err := h.svc.Get(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ConfirmCash(c echo.Context) error {
	hid, id, err := scopedID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.ConfirmCash(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
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
	patientID, id, err := patientScope(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetForPatient(c.Request().Context(), patientID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

type payResponse struct {
	Bill   *HospitalizationBill `json:"bill"`
	Intent *UPIIntent           `json:"upi_intent,omitempty"`
}

func (h *Handler) Pay(c echo.Context) error {
	patientID, id, err := patientScope(c)
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, intent, err := h.svc.Pay(c.Request().Context(), patientID, id, req.PaymentMode, req.TransactionID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, payResponse{Bill: b, Intent: intent})
}

func (h *Handler) UPIQR(c echo.Context) error {
	patientID, id, err := patientScope(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.UPIQR(c.Request().Context(), patientID, id, &buf); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.Blob(http.StatusOK, "image/jpeg", buf.Bytes())
}

func (h *Handler) Unseen(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	n, err := h.svc.Unseen(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unseen": n})
}

func (h *Handler) MarkSeen(c echo.Context) error {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	n, err := h.svc.MarkSeen(c.Request().Context(), patientID)
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

func patientScope(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	patientID, err := auth.SubjectID(c.Request().Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return patientID, id, nil
}
