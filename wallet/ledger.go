package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

// defaultReviewNote is stamped on payout reviews submitted without one.
const defaultReviewNote = "reviewed"

// Store is the persistence contract for the append-only ledger.
// Implementations must serialize AppendLocked and ReviewPayoutRequest
// per owner so two concurrent settlements cannot both read the same
// balance and both pay out.
type Store interface {
	Balance(ctx context.Context, owner models.OwnerType, ownerID int64) (int64, error)
	Transactions(ctx context.Context, owner models.OwnerType, ownerID int64) ([]models.WalletTransaction, error)

	// AppendLocked recomputes the owner balance under the per-owner
	// lock, calls decide with it, and appends the returned row. decide
	// returning an error aborts with nothing written. The new balance
	// is returned.
	AppendLocked(ctx context.Context, owner models.OwnerType, ownerID int64,
		decide func(balance int64) (models.WalletTransaction, error)) (int64, error)

	CreatePayoutRequest(ctx context.Context, req *models.PayoutRequest) error
	GetPayoutRequest(ctx context.Context, id int64) (*models.PayoutRequest, error)

	// ReviewPayoutRequest loads the request and the owner balance under
	// the owner lock, calls decide, then atomically flips the request
	// out of pending (stamping review fields) and appends the returned
	// row when non-nil. A request no longer pending fails with CONFLICT.
	ReviewPayoutRequest(ctx context.Context, id int64, reviewedBy, note string,
		decide func(req *models.PayoutRequest, balance int64) (*models.WalletTransaction, models.PayoutStatus, error)) error
}

// Ledger exposes wallet operations. A balance is only ever the sum of
// the owner's transaction rows; nothing here stores one.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Balance(ctx context.Context, owner models.OwnerType, ownerID int64) (int64, error) {
	return l.store.Balance(ctx, owner, ownerID)
}

func (l *Ledger) Transactions(ctx context.Context, owner models.OwnerType, ownerID int64) ([]models.WalletTransaction, error) {
	return l.store.Transactions(ctx, owner, ownerID)
}

// Adjust appends a signed adjustment. Driver wallets are floored at
// zero: an adjustment that would leave the balance negative is rejected
// atomically with no row written. Vendor wallets carry no floor.
func (l *Ledger) Adjust(ctx context.Context, owner models.OwnerType, ownerID, amount int64, reason string, actor models.Actor) (int64, error) {
	if amount == 0 {
		return 0, fault.New(fault.CodeValidation, "adjustment amount must be non-zero")
	}
	if strings.TrimSpace(reason) == "" {
		return 0, fault.New(fault.CodeValidation, "adjustment reason is required")
	}
	return l.store.AppendLocked(ctx, owner, ownerID, func(balance int64) (models.WalletTransaction, error) {
		if owner == models.OwnerDriver && balance+amount < 0 {
			return models.WalletTransaction{}, fault.New(fault.CodeNegativeBalance,
				"adjustment of %d would leave driver %d at %d", amount, ownerID, balance+amount)
		}
		return models.WalletTransaction{
			ID:        uuid.NewString(),
			OwnerType: owner,
			OwnerID:   ownerID,
			Amount:    amount,
			Kind:      models.KindAdjustment,
			CreatedBy: actor.ID,
			Note:      reason,
			CreatedAt: time.Now().UTC(),
		}, nil
	})
}

// Settle zeroes a positive balance with a single payout row of -B.
// Serialization per owner guarantees two concurrent settles cannot both
// succeed: the second one finds balance 0 and gets NO_BALANCE.
func (l *Ledger) Settle(ctx context.Context, owner models.OwnerType, ownerID int64, actor models.Actor) (int64, error) {
	var paid int64
	_, err := l.store.AppendLocked(ctx, owner, ownerID, func(balance int64) (models.WalletTransaction, error) {
		if balance <= 0 {
			return models.WalletTransaction{}, fault.New(fault.CodeNoBalance, "owner %s/%d has no balance to settle", owner, ownerID)
		}
		paid = balance
		return models.WalletTransaction{
			ID:        uuid.NewString(),
			OwnerType: owner,
			OwnerID:   ownerID,
			Amount:    -balance,
			Kind:      models.KindPayout,
			CreatedBy: actor.ID,
			Note:      "full settlement",
			CreatedAt: time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}

// RequestPayout opens a pending driver withdrawal for admin review.
func (l *Ledger) RequestPayout(ctx context.Context, ownerID, amount int64) (*models.PayoutRequest, error) {
	if amount <= 0 {
		return nil, fault.New(fault.CodeValidation, "payout amount must be positive")
	}
	balance, err := l.store.Balance(ctx, models.OwnerDriver, ownerID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fault.New(fault.CodeNegativeBalance, "requested %d exceeds balance %d", amount, balance)
	}
	req := &models.PayoutRequest{
		OwnerID:     ownerID,
		Amount:      amount,
		Status:      models.PayoutPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := l.store.CreatePayoutRequest(ctx, req); err != nil {
		return nil, fault.Upstream(err)
	}
	return req, nil
}

// Approve re-validates the balance at approval time, appends the payout
// row, and marks the request paid, all atomically.
func (l *Ledger) Approve(ctx context.Context, requestID int64, reviewedBy, note string) error {
	if note == "" {
		note = defaultReviewNote
	}
	return l.store.ReviewPayoutRequest(ctx, requestID, reviewedBy, note,
		func(req *models.PayoutRequest, balance int64) (*models.WalletTransaction, models.PayoutStatus, error) {
			if balance < req.Amount {
				return nil, "", fault.New(fault.CodeNegativeBalance,
					"balance %d no longer covers request of %d", balance, req.Amount)
			}
			txn := &models.WalletTransaction{
				ID:        uuid.NewString(),
				OwnerType: models.OwnerDriver,
				OwnerID:   req.OwnerID,
				Amount:    -req.Amount,
				Kind:      models.KindPayout,
				CreatedBy: reviewedBy,
				Note:      note,
				CreatedAt: time.Now().UTC(),
			}
			return txn, models.PayoutPaid, nil
		})
}

// Reject closes the request without touching the ledger.
func (l *Ledger) Reject(ctx context.Context, requestID int64, reviewedBy, note string) error {
	if note == "" {
		note = defaultReviewNote
	}
	return l.store.ReviewPayoutRequest(ctx, requestID, reviewedBy, note,
		func(req *models.PayoutRequest, balance int64) (*models.WalletTransaction, models.PayoutStatus, error) {
			return nil, models.PayoutRejected, nil
		})
}
