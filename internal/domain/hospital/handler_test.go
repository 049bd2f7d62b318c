package hospital

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/internal/platform/validation"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *Hospital) {
	t.Helper()
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	e.Validator = validation.New("IN")
	return h, e, createHospital(t, svc)
}

func scopedRequest(method, body string, hospitalID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(db.WithTenant(context.Background(), hospitalID))
}

func TestHandler_RegisterDoctor(t *testing.T) {
	h, e, hosp := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodPost,
		`{"name":"Dr. Rao","email":"rao@example.com","specialization":"Cardiology","phone":"+1 650-253-0000"}`, hosp.ID), rec)

	if err := h.RegisterDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var d Doctor
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Status != DoctorPending || d.HospitalID != hosp.ID {
		t.Errorf("unexpected doctor %+v", d)
	}
}

func TestHandler_RegisterDoctor_BadPhone(t *testing.T) {
	h, e, hosp := newTestHandler(t)
	c := e.NewContext(scopedRequest(http.MethodPost,
		`{"name":"Dr. Rao","email":"rao@example.com","specialization":"Cardiology","phone":"12"}`, hosp.ID), httptest.NewRecorder())

	err := h.RegisterDoctor(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RegisterDoctor_RequiresScope(t *testing.T) {
	h, e, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.RegisterDoctor(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHandler_SetDoctorStatus(t *testing.T) {
	h, e, hosp := newTestHandler(t)
	d := &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"}
	_ = h.svc.RegisterDoctor(context.Background(), hosp.ID, d)

	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodPut, `{"status":"active"}`, hosp.ID), rec)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.SetDoctorStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"active"`) {
		t.Errorf("expected active doctor, got %s", rec.Body.String())
	}

	c = e.NewContext(scopedRequest(http.MethodPut, `{"status":"retired"}`, hosp.ID), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if he, ok := h.SetDoctorStatus(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status")
	}
}

func TestHandler_GetDoctor_OtherHospital(t *testing.T) {
	h, e, hosp := newTestHandler(t)
	d := &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"}
	_ = h.svc.RegisterDoctor(context.Background(), hosp.ID, d)

	c := e.NewContext(scopedRequest(http.MethodGet, "", uuid.New()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	he, ok := h.GetDoctor(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across hospitals")
	}
}

func TestHandler_UpdateSettings(t *testing.T) {
	h, e, hosp := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodPut, `{"opd_start_time":"10 AM","upi_id":"citycare@upi"}`, hosp.ID), rec)
	if err := h.UpdateSettings(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Hospital
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.OPDStartTime != "10:00" {
		t.Errorf("expected 10:00, got %s", got.OPDStartTime)
	}

	c = e.NewContext(scopedRequest(http.MethodPut, `{"opd_end_time":"late"}`, hosp.ID), httptest.NewRecorder())
	if he, ok := h.UpdateSettings(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad clock")
	}
}

func TestHandler_ListActiveDoctors(t *testing.T) {
	h, e, hosp := newTestHandler(t)
	active := &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"}
	_ = h.svc.RegisterDoctor(context.Background(), hosp.ID, active)
	_ = h.svc.RegisterDoctor(context.Background(), hosp.ID, &Doctor{Name: "B", Email: "b@x.com", Specialization: "ENT"})
	_, _ = h.svc.SetDoctorStatus(context.Background(), hosp.ID, active.ID, DoctorActive)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())
	if err := h.ListActiveDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one active doctor, got %s", rec.Body.String())
	}
}
