package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/arogyalink/hms/internal/domain/admission"
	"github.com/arogyalink/hms/internal/domain/billing"
	"github.com/arogyalink/hms/internal/platform/apperr"
)

func TestAdmissionToPaidBill(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	h, d := seedHospital(t, ctx, s)
	patientID := uuid.New()

	p, err := s.ward.CreatePartition(ctx, h.ID, "General", 1)
	if err != nil {
		t.Fatalf("create partition: %v", err)
	}

	a := &admission.Admission{
		PatientName:    "Ravi",
		PatientAge:     52,
		Gender:         "male",
		ContactNumber:  "+919812345678",
		ReasonSymptoms: "chest pain",
	}
	if err := s.admission.Intake(ctx, h.ID, patientID, a); err != nil {
		t.Fatalf("intake: %v", err)
	}

	approved, err := s.admission.Approve(ctx, h.ID, a.ID, d.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.BedPartitionID == nil || *approved.BedPartitionID != p.ID {
		t.Fatalf("expected bed in %s, got %v", p.ID, approved.BedPartitionID)
	}

	// The only bed is taken; a second approval must fail without side effects.
	b := &admission.Admission{
		PatientName:    "Sita",
		PatientAge:     40,
		Gender:         "female",
		ContactNumber:  "+919812345679",
		ReasonSymptoms: "fracture",
	}
	if err := s.admission.Intake(ctx, h.ID, uuid.New(), b); err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := s.admission.Approve(ctx, h.ID, b.ID, d.ID); !errors.Is(err, apperr.ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	still, err := s.admission.Get(ctx, h.ID, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if still.Status != admission.StatusPending || still.DoctorID != nil {
		t.Errorf("failed approval left changes behind: %+v", still)
	}

	if _, err := s.billing.GenerateHospitalizationBill(ctx, h.ID, a.ID, billing.Charges{RoomCharges: 1000}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict billing an undischarged stay, got %v", err)
	}

	if _, err := s.admission.Discharge(ctx, h.ID, a.ID); err != nil {
		t.Fatalf("discharge: %v", err)
	}
	bed, err := s.ward.GetPartition(ctx, h.ID, p.ID)
	if err != nil {
		t.Fatalf("get partition: %v", err)
	}
	if bed.AvailableBeds != 1 || bed.OccupiedBeds != 0 {
		t.Errorf("bed not released: %+v", bed)
	}

	bill, err := s.billing.GenerateHospitalizationBill(ctx, h.ID, a.ID, billing.Charges{
		RoomCharges:      1000,
		DoctorFees:       750.5,
		MedicineCharges:  249.5,
		InsuranceCovered: 500,
	})
	if err != nil {
		t.Fatalf("generate bill: %v", err)
	}
	if bill.TotalDays != 1 || bill.GrossTotal != 2000 || bill.NetPayable != 1500 {
		t.Errorf("unexpected bill %+v", bill)
	}
	if _, err := s.billing.GenerateHospitalizationBill(ctx, h.ID, a.ID, billing.Charges{}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on second bill, got %v", err)
	}

	pending, _, err := s.billing.Pay(ctx, patientID, bill.ID, billing.ModeCash, "")
	if err != nil {
		t.Fatalf("pay cash: %v", err)
	}
	if pending.Status != billing.StatusPending {
		t.Errorf("expected Pending after cash, got %s", pending.Status)
	}
	paid, err := s.billing.ConfirmCash(ctx, h.ID, bill.ID)
	if err != nil {
		t.Fatalf("confirm cash: %v", err)
	}
	if paid.Status != billing.StatusPaid {
		t.Errorf("expected Paid, got %s", paid.Status)
	}
}
