package ward

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

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	e := echo.New()
	e.Validator = validation.New("IN")
	return NewHandler(svc), svc, e
}

func scopedRequest(method, body string, hospitalID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(db.WithTenant(context.Background(), hospitalID))
}

func TestHandler_CreatePartition(t *testing.T) {
	h, _, e := newTestHandler()
	hid := uuid.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodPost, `{"name":"General","total_beds":5}`, hid), rec)

	if err := h.CreatePartition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p BedPartition
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.AvailableBeds != 5 || p.OccupiedBeds != 0 || p.HospitalID != hid {
		t.Errorf("unexpected partition %+v", p)
	}
}

func TestHandler_CreatePartition_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(scopedRequest(http.MethodPost, `{"name":"General","total_beds":-1}`, uuid.New()), httptest.NewRecorder())

	err := h.CreatePartition(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_UpdatePartition_Conflict(t *testing.T) {
	h, svc, e := newTestHandler()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "ICU", 2)
	_, _ = svc.Claim(context.Background(), hid, p.ID)
	_, _ = svc.Claim(context.Background(), hid, p.ID)

	c := e.NewContext(scopedRequest(http.MethodPut, `{"total_beds":1}`, hid), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.UpdatePartition(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_DeletePartition(t *testing.T) {
	h, svc, e := newTestHandler()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "ICU", 2)
	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodDelete, "", hid), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.DeletePartition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_GetPartition_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(scopedRequest(http.MethodGet, "", uuid.New()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetPartition(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListPartitions_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodGet, "", uuid.New()), rec)

	if err := h.ListPartitions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_FirstAvailable(t *testing.T) {
	h, svc, e := newTestHandler()
	hid := uuid.New()

	c := e.NewContext(scopedRequest(http.MethodGet, "", hid), httptest.NewRecorder())
	err := h.FirstAvailable(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no partitions, got %v", err)
	}

	p := mustCreate(t, svc, hid, "General", 1)
	rec := httptest.NewRecorder()
	c = e.NewContext(scopedRequest(http.MethodGet, "", hid), rec)
	if err := h.FirstAvailable(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got BedPartition
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != p.ID {
		t.Errorf("expected %s, got %s", p.ID, got.ID)
	}
}

func TestHandler_Summary(t *testing.T) {
	h, svc, e := newTestHandler()
	hid := uuid.New()
	mustCreate(t, svc, hid, "A", 2)
	mustCreate(t, svc, hid, "B", 3)
	rec := httptest.NewRecorder()
	c := e.NewContext(scopedRequest(http.MethodGet, "", hid), rec)

	if err := h.Summary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum Summary
	_ = json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum.TotalBeds != 5 || sum.Partitions != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
}
