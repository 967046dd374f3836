package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

var admin = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

func seedRow(t *testing.T, store *MemStore, owner models.OwnerType, ownerID, amount int64, kind models.TransactionKind) {
	t.Helper()
	_, err := store.AppendLocked(context.Background(), owner, ownerID, func(balance int64) (models.WalletTransaction, error) {
		return models.WalletTransaction{
			ID:        "seed",
			OwnerType: owner,
			OwnerID:   ownerID,
			Amount:    amount,
			Kind:      kind,
			CreatedAt: time.Now().UTC(),
		}, nil
	})
	if err != nil {
		t.Fatalf("seed row: %v", err)
	}
}

// Balance is always the sum of rows: +500, -200, settle -300, final 0.
func TestBalanceIsSumOfRows(t *testing.T) {
	store := NewMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 0 {
		t.Fatalf("fresh balance = %d, want 0", b)
	}

	seedRow(t, store, models.OwnerDriver, 1, 500, models.KindTripEarning)
	if _, err := ledger.Adjust(ctx, models.OwnerDriver, 1, -200, "damaged parcel", admin); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 300 {
		t.Fatalf("balance = %d, want 300", b)
	}

	paid, err := ledger.Settle(ctx, models.OwnerDriver, 1, admin)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if paid != 300 {
		t.Errorf("settled %d, want 300", paid)
	}
	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 0 {
		t.Errorf("balance after settle = %d, want 0", b)
	}

	rows, _ := ledger.Transactions(ctx, models.OwnerDriver, 1)
	if len(rows) != 3 {
		t.Errorf("row count = %d, want 3", len(rows))
	}
}

func TestDriverFloorRejectsNegative(t *testing.T) {
	store := NewMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	seedRow(t, store, models.OwnerDriver, 1, 100, models.KindTripEarning)
	_, err := ledger.Adjust(ctx, models.OwnerDriver, 1, -150, "penalty", admin)
	if !fault.Is(err, fault.CodeNegativeBalance) {
		t.Fatalf("want NEGATIVE_BALANCE_REJECTED, got %v", err)
	}
	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 100 {
		t.Errorf("rejected adjustment wrote a row, balance = %d", b)
	}
	rows, _ := ledger.Transactions(ctx, models.OwnerDriver, 1)
	if len(rows) != 1 {
		t.Errorf("row count = %d, want 1", len(rows))
	}
}

func TestVendorHasNoFloor(t *testing.T) {
	ledger := NewLedger(NewMemStore())
	ctx := context.Background()

	balance, err := ledger.Adjust(ctx, models.OwnerVendor, 5, -2500, "chargeback", admin)
	if err != nil {
		t.Fatalf("vendor negative adjust: %v", err)
	}
	if balance != -2500 {
		t.Errorf("vendor balance = %d, want -2500", balance)
	}
}

func TestAdjustValidation(t *testing.T) {
	ledger := NewLedger(NewMemStore())
	ctx := context.Background()

	if _, err := ledger.Adjust(ctx, models.OwnerDriver, 1, 0, "noop", admin); !fault.Is(err, fault.CodeValidation) {
		t.Errorf("zero amount: want VALIDATION, got %v", err)
	}
	if _, err := ledger.Adjust(ctx, models.OwnerDriver, 1, 100, "  ", admin); !fault.Is(err, fault.CodeValidation) {
		t.Errorf("blank reason: want VALIDATION, got %v", err)
	}
}

func TestSettleEmptyWallet(t *testing.T) {
	ledger := NewLedger(NewMemStore())
	_, err := ledger.Settle(context.Background(), models.OwnerDriver, 1, admin)
	if !fault.Is(err, fault.CodeNoBalance) {
		t.Fatalf("want NO_BALANCE, got %v", err)
	}
}

// Two settlements race on a 300 balance: exactly one -300 payout row
// lands and the final balance is 0, never -300.
func TestConcurrentSettleSingleWinner(t *testing.T) {
	store := NewMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()
	seedRow(t, store, models.OwnerDriver, 1, 300, models.KindTripEarning)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Settle(ctx, models.OwnerDriver, 1, admin)
		}(i)
	}
	wg.Wait()

	won, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case fault.Is(err, fault.CodeNoBalance):
			lost++
		default:
			t.Fatalf("unexpected settle error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one of each", won, lost)
	}

	rows, _ := ledger.Transactions(ctx, models.OwnerDriver, 1)
	payouts := 0
	for _, r := range rows {
		if r.Kind == models.KindPayout {
			payouts++
			if r.Amount != -300 {
				t.Errorf("payout amount = %d, want -300", r.Amount)
			}
		}
	}
	if payouts != 1 {
		t.Errorf("payout rows = %d, want 1", payouts)
	}
	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 0 {
		t.Errorf("final balance = %d, want 0", b)
	}
}

func TestPayoutRequestLifecycle(t *testing.T) {
	store := NewMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()
	seedRow(t, store, models.OwnerDriver, 1, 1000, models.KindTripEarning)

	if _, err := ledger.RequestPayout(ctx, 1, 5000); !fault.Is(err, fault.CodeNegativeBalance) {
		t.Errorf("over-balance request: want NEGATIVE_BALANCE_REJECTED, got %v", err)
	}
	if _, err := ledger.RequestPayout(ctx, 1, 0); !fault.Is(err, fault.CodeValidation) {
		t.Errorf("zero request: want VALIDATION, got %v", err)
	}

	req, err := ledger.RequestPayout(ctx, 1, 400)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if req.Status != models.PayoutPending {
		t.Errorf("status = %s, want pending", req.Status)
	}

	if err := ledger.Approve(ctx, req.ID, "admin-1", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	got, _ := store.GetPayoutRequest(ctx, req.ID)
	if got.Status != models.PayoutPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}
	if got.AdminNote != "reviewed" {
		t.Errorf("empty note must default to %q, got %q", "reviewed", got.AdminNote)
	}
	if got.ReviewedAt == nil || got.ReviewedBy != "admin-1" {
		t.Errorf("review stamp missing: %+v", got)
	}
	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 600 {
		t.Errorf("balance after approval = %d, want 600", b)
	}

	// second review of the same request
	if err := ledger.Reject(ctx, req.ID, "admin-2", "late"); !fault.Is(err, fault.CodeConflict) {
		t.Errorf("double review: want CONFLICT, got %v", err)
	}
}

// Approval re-checks the balance at review time, not request time.
func TestApproveRevalidatesBalance(t *testing.T) {
	store := NewMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()
	seedRow(t, store, models.OwnerDriver, 1, 500, models.KindTripEarning)

	req, err := ledger.RequestPayout(ctx, 1, 500)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}

	// balance drains between request and review
	if _, err := ledger.Settle(ctx, models.OwnerDriver, 1, admin); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	err = ledger.Approve(ctx, req.ID, "admin-1", "ok")
	if !fault.Is(err, fault.CodeNegativeBalance) {
		t.Fatalf("want NEGATIVE_BALANCE_REJECTED, got %v", err)
	}
	got, _ := store.GetPayoutRequest(ctx, req.ID)
	if got.Status != models.PayoutPending {
		t.Errorf("failed approval must leave request pending, got %s", got.Status)
	}
	rows, _ := ledger.Transactions(ctx, models.OwnerDriver, 1)
	if len(rows) != 2 {
		t.Errorf("failed approval wrote a row, count = %d", len(rows))
	}
}

func TestRejectLeavesLedgerUntouched(t *testing.T) {
	store := NewMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()
	seedRow(t, store, models.OwnerDriver, 1, 1000, models.KindTripEarning)

	req, err := ledger.RequestPayout(ctx, 1, 400)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if err := ledger.Reject(ctx, req.ID, "admin-1", "docs missing"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, _ := store.GetPayoutRequest(ctx, req.ID)
	if got.Status != models.PayoutRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if b, _ := ledger.Balance(ctx, models.OwnerDriver, 1); b != 1000 {
		t.Errorf("rejection changed balance: %d", b)
	}
}
