package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arogyalink/hms/internal/platform/auth"
	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/internal/platform/validation"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validation.New("IN")
	return NewHandler(f.svc), f, e
}

func jsonRequest(ctx context.Context, method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(ctx)
}

func staffContext(hospitalID, userID uuid.UUID, role string) context.Context {
	ctx := auth.WithIdentity(context.Background(), userID, role)
	return db.WithTenant(ctx, hospitalID)
}

func TestHandler_Intake(t *testing.T) {
	h, f, e := newTestHandler()
	patientID := uuid.New()
	ctx := auth.WithIdentity(context.Background(), patientID, auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(ctx, http.MethodPost,
		`{"patient_name":"Asha","patient_age":42,"gender":"female","contact_number":"+91 81234 56789","reason_symptoms":"fever"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.hospitalID.String())

	if err := h.Intake(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Admission
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.PatientID != patientID || a.Status != StatusPending {
		t.Errorf("unexpected admission %+v", a)
	}
}

func TestHandler_Intake_BadPhone(t *testing.T) {
	h, f, e := newTestHandler()
	ctx := auth.WithIdentity(context.Background(), uuid.New(), auth.RolePatient)
	c := e.NewContext(jsonRequest(ctx, http.MethodPost,
		`{"patient_name":"Asha","patient_age":42,"gender":"female","contact_number":"12","reason_symptoms":"fever"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.hospitalID.String())

	err := h.Intake(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Approve_Exhausted(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.intake(t)
	c := e.NewContext(jsonRequest(staffContext(f.hospitalID, uuid.New(), auth.RoleAdmin), http.MethodPost,
		`{"doctor_id":"`+f.doctorID.String()+`"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.Approve(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409 with no partitions, got %v", err)
	}
}

func TestHandler_ApproveAndDischarge(t *testing.T) {
	h, f, e := newTestHandler()
	f.ledger.add(f.hospitalID, "General", 1)
	a := f.intake(t)
	ctx := staffContext(f.hospitalID, uuid.New(), auth.RoleAdmin)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(ctx, http.MethodPost, `{"doctor_id":"`+f.doctorID.String()+`"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Approve(c); err != nil {
		t.Fatalf("approve: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(ctx, http.MethodPost, ""), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Discharge(c); err != nil {
		t.Fatalf("discharge: %v", err)
	}
	var out Admission
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != StatusDischarged {
		t.Errorf("expected Discharged, got %s", out.Status)
	}
}

func TestHandler_Reject_BlankReason(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.intake(t)
	c := e.NewContext(jsonRequest(staffContext(f.hospitalID, uuid.New(), auth.RoleAdmin), http.MethodPost,
		`{"reason":"  "}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.Reject(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RecordTreatment(t *testing.T) {
	h, f, e := newTestHandler()
	f.ledger.add(f.hospitalID, "General", 1)
	a := f.approved(t)
	ctx := staffContext(f.hospitalID, f.doctorID, auth.RoleDoctor)

	c := e.NewContext(jsonRequest(ctx, http.MethodPost, `{"status_update":"Cured"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.RecordTreatment(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %v", err)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(jsonRequest(ctx, http.MethodPost,
		`{"status_update":"In Progress","treatment_notes":"stable"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.RecordTreatment(c); err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_UnseenForDoctor(t *testing.T) {
	h, f, e := newTestHandler()
	f.ledger.add(f.hospitalID, "General", 1)
	f.approved(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(staffContext(f.hospitalID, f.doctorID, auth.RoleDoctor), http.MethodGet, ""), rec)

	if err := h.UnseenForDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["unseen"] != 1 {
		t.Errorf("expected 1 unseen, got %v", body)
	}
}
