package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/auth"
	"github.com/arogyalink/hms/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor), db.RequireTenant())
	read.GET("/wards", h.ListPartitions)
	read.GET("/wards/summary", h.Summary)
	read.GET("/wards/first-available", h.FirstAvailable)
	read.GET("/wards/:id", h.GetPartition)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin), db.RequireTenant())
	write.POST("/wards", h.CreatePartition)
	write.PUT("/wards/:id", h.UpdatePartition)
	write.DELETE("/wards/:id", h.DeletePartition)
}

type createPartitionRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	TotalBeds int    `json:"total_beds" validate:"gte=0"`
}

func (h *Handler) CreatePartition(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	var req createPartitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.svc.CreatePartition(c.Request().Context(), hid, req.Name, req.TotalBeds)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPartition(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPartition(c.Request().Context(), hid, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPartitions(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPartitions(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*BedPartition{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdatePartition(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd PartitionUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&upd); err != nil {
		return err
	}
	p, err := h.svc.UpdatePartition(c.Request().Context(), hid, id, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePartition(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePartition(c.Request().Context(), hid, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Summary(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) FirstAvailable(c echo.Context) error {
	hid, err := db.HospitalID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.FindFirstAvailable(c.Request().Context(), hid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no beds available")
	}
	return c.JSON(http.StatusOK, p)
}
