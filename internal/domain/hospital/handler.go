package hospital

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
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin), db.RequireTenant())
	admin.GET("/hospital", h.GetHospital)
	admin.PUT("/hospital/settings", h.UpdateSettings)
	admin.GET("/hospital/setup-status", h.SetupStatus)
	admin.POST("/doctors", h.RegisterDoctor)
	admin.GET("/doctors", h.ListDoctors)
	admin.GET("/doctors/:id", h.GetDoctor)
	admin.PUT("/doctors/:id/status", h.SetDoctorStatus)

	// Patients pick a hospital and doctor before booking or requesting
	// admission.
	patient := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleAdmin, auth.RoleDoctor))
	patient.GET("/hospitals/:id/doctors", h.ListActiveDoctors)
}

func (h *Handler) GetHospital(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	var upd SettingsUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&upd); err != nil {
		return err
	}
	hosp, err := h.svc.UpdateSettings(c.Request().Context(), hid, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) SetupStatus(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.SetupStatus(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

type registerDoctorRequest struct {
	Name           string  `json:"name" validate:"required,max=100"`
	Email          string  `json:"email" validate:"required,email"`
	Phone          *string `json:"phone" validate:"omitempty,phone"`
	Specialization string  `json:"specialization" validate:"required,max=100"`
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	var req registerDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	d := &Doctor{Name: req.Name, Email: req.Email, Phone: req.Phone, Specialization: req.Specialization}
	if err := h.svc.RegisterDoctor(c.Request().Context(), hid, d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), hid, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

type doctorStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active"`
}

func (h *Handler) SetDoctorStatus(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req doctorStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	d, err := h.svc.SetDoctorStatus(c.Request().Context(), hid, id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListActiveDoctors(c echo.Context) error {
	hid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), hid, DoctorActive, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
