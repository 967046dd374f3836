package wallet

import (
	"context"
	"sync"
	"time"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

// MemStore is an in-memory ledger store. One mutex serializes every
// append, which trivially satisfies the per-owner serialization the
// interface demands.
type MemStore struct {
	mu   sync.Mutex
	rows []models.WalletTransaction
	reqs map[int64]*models.PayoutRequest
	seq  int64
}

func NewMemStore() *MemStore {
	return &MemStore{reqs: make(map[int64]*models.PayoutRequest)}
}

func (m *MemStore) sum(owner models.OwnerType, ownerID int64) int64 {
	var total int64
	for _, r := range m.rows {
		if r.OwnerType == owner && r.OwnerID == ownerID {
			total += r.Amount
		}
	}
	return total
}

func (m *MemStore) Balance(ctx context.Context, owner models.OwnerType, ownerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sum(owner, ownerID), nil
}

func (m *MemStore) Transactions(ctx context.Context, owner models.OwnerType, ownerID int64) ([]models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WalletTransaction
	for _, r := range m.rows {
		if r.OwnerType == owner && r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) AppendLocked(ctx context.Context, owner models.OwnerType, ownerID int64,
	decide func(balance int64) (models.WalletTransaction, error)) (int64, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	balance := m.sum(owner, ownerID)
	row, err := decide(balance)
	if err != nil {
		return 0, err
	}
	m.rows = append(m.rows, row)
	return balance + row.Amount, nil
}

func (m *MemStore) CreatePayoutRequest(ctx context.Context, req *models.PayoutRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req.ID = m.seq
	cp := *req
	m.reqs[req.ID] = &cp
	return nil
}

func (m *MemStore) GetPayoutRequest(ctx context.Context, id int64) (*models.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.reqs[id]
	if !ok {
		return nil, fault.New(fault.CodeNotFound, "payout request %d not found", id)
	}
	cp := *req
	return &cp, nil
}

func (m *MemStore) ReviewPayoutRequest(ctx context.Context, id int64, reviewedBy, note string,
	decide func(req *models.PayoutRequest, balance int64) (*models.WalletTransaction, models.PayoutStatus, error)) error {

	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.reqs[id]
	if !ok {
		return fault.New(fault.CodeNotFound, "payout request %d not found", id)
	}
	if req.Status != models.PayoutPending {
		return fault.New(fault.CodeConflict, "payout request %d already %s", id, req.Status)
	}

	balance := m.sum(models.OwnerDriver, req.OwnerID)
	row, status, err := decide(req, balance)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	req.Status = status
	req.ReviewedAt = &now
	req.ReviewedBy = reviewedBy
	req.AdminNote = note
	if row != nil {
		m.rows = append(m.rows, *row)
	}
	return nil
}
