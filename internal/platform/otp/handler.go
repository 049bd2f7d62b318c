package otp

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arogyalink/hms/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the OTP endpoints. They are public: the caller has
// no token yet.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/otp/request", h.Request)
	g.POST("/otp/verify", h.Verify)
}

type requestBody struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyBody struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric,len=6"`
}

func (h *Handler) Request(c echo.Context) error {
	var req requestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.Request(c.Request().Context(), req.Email); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "code sent"})
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.Check(c.Request().Context(), req.Email, req.Code); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"verified": true})
}
