package ward

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/arogyalink/hms/internal/platform/apperr"
)

// -- Mock Repository --

type mockPartitionRepo struct {
	mu    sync.Mutex
	parts map[uuid.UUID]BedPartition
	seq   int64
}

func newMockPartitionRepo() *mockPartitionRepo {
	return &mockPartitionRepo{parts: make(map[uuid.UUID]BedPartition)}
}

func (m *mockPartitionRepo) Create(_ context.Context, p *BedPartition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = uuid.New()
	p.Seq = m.seq
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.parts[p.ID] = *p
	return nil
}

func (m *mockPartitionRepo) GetByID(_ context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parts[id]
	if !ok || p.HospitalID != hospitalID {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (m *mockPartitionRepo) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	return m.GetByID(ctx, hospitalID, id)
}

func (m *mockPartitionRepo) Update(_ context.Context, p *BedPartition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !p.Consistent() {
		return errors.New("violates check constraint \"bed_partition_counts\"")
	}
	p.UpdatedAt = time.Now()
	m.parts[p.ID] = *p
	return nil
}

func (m *mockPartitionRepo) Delete(_ context.Context, hospitalID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parts[id]
	if !ok || p.HospitalID != hospitalID {
		return pgx.ErrNoRows
	}
	delete(m.parts, id)
	return nil
}

func (m *mockPartitionRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]*BedPartition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BedPartition
	for _, p := range m.parts {
		if p.HospitalID == hospitalID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *mockPartitionRepo) FirstAvailable(ctx context.Context, hospitalID uuid.UUID, _ bool) (*BedPartition, error) {
	items, _ := m.ListByHospital(ctx, hospitalID)
	for _, p := range items {
		if p.AvailableBeds > 0 {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPartitionRepo) CountByHospital(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	items, _ := m.ListByHospital(ctx, hospitalID)
	return len(items), nil
}

func (m *mockPartitionRepo) snapshot() map[uuid.UUID]BedPartition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]BedPartition, len(m.parts))
	for k, v := range m.parts {
		out[k] = v
	}
	return out
}

func (m *mockPartitionRepo) restore(s map[uuid.UUID]BedPartition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts = s
}

// mockTx serialises transactions, standing in for row locks, and restores
// the repository when fn fails.
type mockTx struct {
	mu   sync.Mutex
	repo *mockPartitionRepo
}

type inTxKey struct{}

func (t *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.repo.snapshot()
	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		t.repo.restore(snap)
		return err
	}
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	claims   map[string]int
	releases int
}

func (o *countingObserver) ObserveClaim(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.claims[outcome]++
}

func (o *countingObserver) ObserveRelease() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releases++
}

func newTestService() (*Service, *mockPartitionRepo) {
	repo := newMockPartitionRepo()
	return NewService(repo, &mockTx{repo: repo}, zerolog.Nop()), repo
}

func mustCreate(t *testing.T, svc *Service, hospitalID uuid.UUID, name string, total int) *BedPartition {
	t.Helper()
	p, err := svc.CreatePartition(context.Background(), hospitalID, name, total)
	if err != nil {
		t.Fatalf("create partition: %v", err)
	}
	return p
}

func assertCounts(t *testing.T, svc *Service, hospitalID, id uuid.UUID, total, available, occupied int) {
	t.Helper()
	p, err := svc.GetPartition(context.Background(), hospitalID, id)
	if err != nil {
		t.Fatalf("get partition: %v", err)
	}
	if p.TotalBeds != total || p.AvailableBeds != available || p.OccupiedBeds != occupied {
		t.Errorf("expected total=%d available=%d occupied=%d, got %d/%d/%d",
			total, available, occupied, p.TotalBeds, p.AvailableBeds, p.OccupiedBeds)
	}
	if !p.Consistent() {
		t.Errorf("partition inconsistent: %+v", p)
	}
}

// -- Administration --

func TestCreatePartition(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, " General ", 5)
	if p.Name != "General" {
		t.Errorf("expected trimmed name, got %q", p.Name)
	}
	assertCounts(t, svc, hid, p.ID, 5, 5, 0)
}

func TestCreatePartition_Validation(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.CreatePartition(context.Background(), uuid.New(), "", 5); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.CreatePartition(context.Background(), uuid.New(), "ICU", -1); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input for negative beds, got %v", err)
	}
}

func TestUpdatePartition_Resize(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "ICU", 5)
	for i := 0; i < 3; i++ {
		if _, err := svc.Claim(context.Background(), hid, p.ID); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	small := 2
	if _, err := svc.UpdatePartition(context.Background(), hid, p.ID, PartitionUpdate{TotalBeds: &small}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict shrinking below occupied, got %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 5, 2, 3)

	exact := 3
	if _, err := svc.UpdatePartition(context.Background(), hid, p.ID, PartitionUpdate{TotalBeds: &exact}); err != nil {
		t.Fatalf("resize to occupied: %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 3, 0, 3)

	big := 10
	name := "ICU North"
	got, err := svc.UpdatePartition(context.Background(), hid, p.ID, PartitionUpdate{Name: &name, TotalBeds: &big})
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if got.Name != "ICU North" {
		t.Errorf("expected rename, got %q", got.Name)
	}
	assertCounts(t, svc, hid, p.ID, 10, 7, 3)
}

func TestDeletePartition(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "ICU", 2)
	_, _ = svc.Claim(context.Background(), hid, p.ID)

	if err := svc.DeletePartition(context.Background(), hid, p.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict deleting occupied partition, got %v", err)
	}
	_, _ = svc.Release(context.Background(), hid, p.ID)
	if err := svc.DeletePartition(context.Background(), hid, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetPartition(context.Background(), hid, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestPartition_OtherHospitalIsNotFound(t *testing.T) {
	svc, _ := newTestService()
	p := mustCreate(t, svc, uuid.New(), "ICU", 2)
	other := uuid.New()
	if _, err := svc.GetPartition(context.Background(), other, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.Claim(context.Background(), other, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on claim, got %v", err)
	}
	if err := svc.DeletePartition(context.Background(), other, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on delete, got %v", err)
	}
}

// -- Ledger --

func TestClaimRelease_RoundTrip(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "General", 3)

	if _, err := svc.Claim(context.Background(), hid, p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 3, 2, 1)
	if _, err := svc.Release(context.Background(), hid, p.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 3, 3, 0)
}

func TestClaim_Exhausted(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "General", 1)
	_, _ = svc.Claim(context.Background(), hid, p.ID)

	if _, err := svc.Claim(context.Background(), hid, p.ID); !errors.Is(err, apperr.ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 1, 0, 1)
}

func TestRelease_InvariantViolation(t *testing.T) {
	repo := newMockPartitionRepo()
	var logs bytes.Buffer
	svc := NewService(repo, &mockTx{repo: repo}, zerolog.New(&logs))
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "General", 2)

	_, err := svc.Release(context.Background(), hid, p.ID)
	if !errors.Is(err, apperr.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 2, 2, 0)
	if !strings.Contains(logs.String(), `"level":"fatal"`) {
		t.Errorf("expected fatal-level log entry, got %s", logs.String())
	}
}

func TestFindFirstAvailable_OldestFirst(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	full := mustCreate(t, svc, hid, "A", 1)
	second := mustCreate(t, svc, hid, "B", 2)
	mustCreate(t, svc, hid, "C", 5)
	_, _ = svc.Claim(context.Background(), hid, full.ID)

	p, err := svc.FindFirstAvailable(context.Background(), hid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != second.ID {
		t.Fatalf("expected partition B, got %+v", p)
	}

	none, err := svc.FindFirstAvailable(context.Background(), uuid.New())
	if err != nil || none != nil {
		t.Errorf("expected no partition for empty hospital, got %v %v", none, err)
	}
}

func TestClaimFirstAvailable_ScenarioFiveBeds(t *testing.T) {
	svc, _ := newTestService()
	obs := &countingObserver{claims: map[string]int{}}
	svc.WithObserver(obs)
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "General", 5)

	for i := 0; i < 5; i++ {
		if _, err := svc.ClaimFirstAvailable(context.Background(), hid); err != nil {
			t.Fatalf("claim %d: %v", i+1, err)
		}
	}
	assertCounts(t, svc, hid, p.ID, 5, 0, 5)

	if _, err := svc.ClaimFirstAvailable(context.Background(), hid); !errors.Is(err, apperr.ErrExhausted) {
		t.Fatalf("expected exhausted on sixth claim, got %v", err)
	}
	assertCounts(t, svc, hid, p.ID, 5, 0, 5)
	if obs.claims[OutcomeClaimed] != 5 || obs.claims[OutcomeExhausted] != 1 {
		t.Errorf("unexpected observer counts %v", obs.claims)
	}
}

func TestClaimFirstAvailable_Concurrent(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	a := mustCreate(t, svc, hid, "A", 3)
	b := mustCreate(t, svc, hid, "B", 2)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, exhausted := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ClaimFirstAvailable(context.Background(), hid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 5 || exhausted != 15 {
		t.Errorf("expected 5 claims and 15 exhausted, got %d and %d", ok, exhausted)
	}
	assertCounts(t, svc, hid, a.ID, 3, 0, 3)
	assertCounts(t, svc, hid, b.ID, 2, 0, 2)
}

func TestTransfer(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	from := mustCreate(t, svc, hid, "General", 2)
	to := mustCreate(t, svc, hid, "ICU", 1)
	_, _ = svc.Claim(context.Background(), hid, from.ID)

	got, err := svc.Transfer(context.Background(), hid, from.ID, to.ID)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got.ID != to.ID {
		t.Errorf("expected target partition returned")
	}
	assertCounts(t, svc, hid, from.ID, 2, 2, 0)
	assertCounts(t, svc, hid, to.ID, 1, 0, 1)
}

func TestTransfer_TargetFullLeavesSourceUntouched(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	from := mustCreate(t, svc, hid, "General", 2)
	to := mustCreate(t, svc, hid, "ICU", 1)
	_, _ = svc.Claim(context.Background(), hid, from.ID)
	_, _ = svc.Claim(context.Background(), hid, to.ID)

	if _, err := svc.Transfer(context.Background(), hid, from.ID, to.ID); !errors.Is(err, apperr.ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	assertCounts(t, svc, hid, from.ID, 2, 1, 1)
	assertCounts(t, svc, hid, to.ID, 1, 0, 1)
}

func TestTransfer_SamePartition(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	p := mustCreate(t, svc, hid, "General", 2)
	if _, err := svc.Transfer(context.Background(), hid, p.ID, p.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestTransfer_SourceWithoutOccupantRollsBack(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	from := mustCreate(t, svc, hid, "General", 2)
	to := mustCreate(t, svc, hid, "ICU", 1)

	if _, err := svc.Transfer(context.Background(), hid, from.ID, to.ID); !errors.Is(err, apperr.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	assertCounts(t, svc, hid, from.ID, 2, 2, 0)
	assertCounts(t, svc, hid, to.ID, 1, 1, 0)
}

func TestSummaryAndCount(t *testing.T) {
	svc, _ := newTestService()
	hid := uuid.New()
	a := mustCreate(t, svc, hid, "A", 3)
	mustCreate(t, svc, hid, "B", 4)
	_, _ = svc.Claim(context.Background(), hid, a.ID)

	sum, err := svc.Summary(context.Background(), hid)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Partitions != 2 || sum.TotalBeds != 7 || sum.AvailableBeds != 6 || sum.OccupiedBeds != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	n, _ := svc.CountPartitions(context.Background(), hid)
	if n != 2 {
		t.Errorf("expected 2 partitions, got %d", n)
	}
}
