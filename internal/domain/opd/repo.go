package opd

import (
	"context"

	"github.com/google/uuid"
)

type SlotRepository interface {
	Create(ctx context.Context, s *Slot) error
	// CreateIfAbsent inserts s unless the doctor already has a slot at that
	// date and start time. It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, s *Slot) (bool, error)
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Slot, error)
	GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*Slot, error)
	Find(ctx context.Context, hospitalID, doctorID uuid.UUID, date, start, end string) (*Slot, error)
	// MarkBooked flips is_booked only if the slot is still free and
	// available; it reports whether it did.
	MarkBooked(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, s *Slot) error
	Delete(ctx context.Context, hospitalID, id uuid.UUID) error
	ListByDoctorDate(ctx context.Context, hospitalID, doctorID uuid.UUID, date string) ([]*Slot, error)
	DeleteUnbookedBefore(ctx context.Context, doctorID uuid.UUID, date string) (int64, error)
	DatesWithSlots(ctx context.Context, doctorID uuid.UUID, from, to string) (map[string]bool, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error)
	GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// LockDay serialises token assignment for one doctor and date until the
	// caller's transaction ends.
	LockDay(ctx context.Context, doctorID uuid.UUID, date string) error
	Tokens(ctx context.Context, doctorID uuid.UUID, date string) ([]int, error)
	// CurrentToken is the lowest token still waiting; ok is false when no
	// appointment of the day is pending.
	CurrentToken(ctx context.Context, doctorID uuid.UUID, date string) (token int, ok bool, err error)
	CountForDay(ctx context.Context, doctorID uuid.UUID, date string) (int, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, date string, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID, date string, limit, offset int) ([]*Appointment, int, error)
	ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from string) ([]*Appointment, error)
	ListBillPending(ctx context.Context, hospitalID, doctorID uuid.UUID) ([]*Appointment, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error)
}
