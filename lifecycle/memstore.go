package lifecycle

import (
	"context"
	"strconv"
	"sync"
	"time"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

// MemTripStore is an in-memory TripStore with the same compare-and-set
// semantics as the Postgres store. It backs tests and local runs
// without a database.
type MemTripStore struct {
	mu     sync.Mutex
	seq    int64
	trips  map[int64]*models.Trip
	byCode map[string]int64
	audits []AssignmentAudit

	// Ledger receives the postings appended by CompleteWithPostings.
	Ledger []models.WalletTransaction
}

func NewMemTripStore() *MemTripStore {
	return &MemTripStore{
		trips:  make(map[int64]*models.Trip),
		byCode: make(map[string]int64),
	}
}

// Seed inserts a trip directly, bypassing creation validation.
func (m *MemTripStore) Seed(t *models.Trip) *models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = m.seq
	cp := *t
	m.trips[t.ID] = &cp
	m.byCode[t.Code] = t.ID
	return t
}

func (m *MemTripStore) lookup(ref string) *models.Trip {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return m.trips[id]
	}
	if id, ok := m.byCode[ref]; ok {
		return m.trips[id]
	}
	return nil
}

func (m *MemTripStore) GetByRef(ctx context.Context, ref string) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.lookup(ref)
	if t == nil {
		return nil, fault.New(fault.CodeNotFound, "trip %s not found", ref)
	}
	cp := *t
	return &cp, nil
}

func (m *MemTripStore) Create(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = m.seq
	cp := *t
	m.trips[t.ID] = &cp
	m.byCode[t.Code] = t.ID
	return nil
}

func (m *MemTripStore) UpdateStatus(ctx context.Context, tripID int64, from, to models.TripStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemTripStore) UpdateFulfillment(ctx context.Context, tripID int64, from, to models.TripStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok || t.FulfillmentStatus != from {
		return false, nil
	}
	t.FulfillmentStatus = to
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemTripStore) AssignDriver(ctx context.Context, tripID int64, driverID int64, from models.TripStatus, audit AssignmentAudit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = models.StatusAssigned
	t.AssignedDriverID = &driverID
	t.UpdatedAt = time.Now().UTC()
	if audit.OverrideUsed {
		t.OverrideUsed = true
		t.OverrideActor = audit.Actor
		t.OverrideReason = audit.OverrideReason
		now := time.Now().UTC()
		t.OverrideAt = &now
	}
	m.audits = append(m.audits, audit)
	return true, nil
}

func (m *MemTripStore) CompleteWithPostings(ctx context.Context, tripID int64, from models.TripStatus, postings []models.WalletTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = models.StatusCompleted
	t.UpdatedAt = time.Now().UTC()
	m.Ledger = append(m.Ledger, postings...)
	return true, nil
}

func (m *MemTripStore) Assignments(ctx context.Context, tripID int64) ([]AssignmentAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AssignmentAudit
	for _, a := range m.audits {
		if a.TripID == tripID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemTripStore) ActiveTrips(ctx context.Context, cancelledWithin time.Duration) ([]*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []*models.Trip
	for _, t := range m.trips {
		switch t.Status {
		case models.StatusCompleted:
			continue
		case models.StatusCancelled:
			if now.Sub(t.UpdatedAt) > cancelledWithin {
				continue
			}
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}
