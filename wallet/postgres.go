package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

// PostgresStore keeps the ledger in wallet_transactions (append-only;
// no UPDATE or DELETE is ever issued against it) and review state in
// payout_requests. Per-owner serialization uses transaction-scoped
// advisory locks keyed on owner type + id.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// InsertTransactionTx appends one ledger row inside a caller-owned
// transaction. The lifecycle store uses this to commit completion
// postings together with the status write.
func InsertTransactionTx(ctx context.Context, tx *sql.Tx, t models.WalletTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, owner_type, owner_id, amount, kind, booking_code, created_by, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.OwnerType, t.OwnerID, t.Amount, t.Kind, nullable(t.BookingCode), t.CreatedBy, t.Note, t.CreatedAt)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func ownerLockKey(owner models.OwnerType, ownerID int64) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", owner, ownerID)
	return int64(h.Sum64())
}

func (s *PostgresStore) Balance(ctx context.Context, owner models.OwnerType, ownerID int64) (int64, error) {
	var sum int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE owner_type=$1 AND owner_id=$2`,
		owner, ownerID).Scan(&sum)
	if err != nil {
		return 0, fault.Upstream(err)
	}
	return sum, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, owner models.OwnerType, ownerID int64) ([]models.WalletTransaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, owner_type, owner_id, amount, kind, COALESCE(booking_code, ''), created_by, COALESCE(note, ''), created_at
		FROM wallet_transactions WHERE owner_type=$1 AND owner_id=$2 ORDER BY created_at, id`,
		owner, ownerID)
	if err != nil {
		return nil, fault.Upstream(err)
	}
	defer rows.Close()

	var out []models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.OwnerType, &t.OwnerID, &t.Amount, &t.Kind, &t.BookingCode, &t.CreatedBy, &t.Note, &t.CreatedAt); err != nil {
			return nil, fault.Upstream(err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendLocked(ctx context.Context, owner models.OwnerType, ownerID int64,
	decide func(balance int64) (models.WalletTransaction, error)) (int64, error) {

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fault.Upstream(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerLockKey(owner, ownerID)); err != nil {
		return 0, fault.Upstream(err)
	}

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE owner_type=$1 AND owner_id=$2`,
		owner, ownerID).Scan(&balance)
	if err != nil {
		return 0, fault.Upstream(err)
	}

	row, err := decide(balance)
	if err != nil {
		return 0, err
	}
	if err := InsertTransactionTx(ctx, tx, row); err != nil {
		return 0, fault.Upstream(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fault.Upstream(err)
	}
	return balance + row.Amount, nil
}

func (s *PostgresStore) CreatePayoutRequest(ctx context.Context, req *models.PayoutRequest) error {
	return s.DB.QueryRowContext(ctx, `
		INSERT INTO payout_requests (owner_id, amount, status, requested_at)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		req.OwnerID, req.Amount, req.Status, req.RequestedAt).Scan(&req.ID)
}

func (s *PostgresStore) GetPayoutRequest(ctx context.Context, id int64) (*models.PayoutRequest, error) {
	var req models.PayoutRequest
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, amount, status, requested_at, reviewed_at, COALESCE(reviewed_by, ''), COALESCE(admin_note, '')
		FROM payout_requests WHERE id=$1`, id).
		Scan(&req.ID, &req.OwnerID, &req.Amount, &req.Status, &req.RequestedAt, &req.ReviewedAt, &req.ReviewedBy, &req.AdminNote)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.CodeNotFound, "payout request %d not found", id)
	}
	if err != nil {
		return nil, fault.Upstream(err)
	}
	return &req, nil
}

func (s *PostgresStore) ReviewPayoutRequest(ctx context.Context, id int64, reviewedBy, note string,
	decide func(req *models.PayoutRequest, balance int64) (*models.WalletTransaction, models.PayoutStatus, error)) error {

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fault.Upstream(err)
	}
	defer tx.Rollback()

	var req models.PayoutRequest
	err = tx.QueryRowContext(ctx, `
		SELECT id, owner_id, amount, status, requested_at
		FROM payout_requests WHERE id=$1 FOR UPDATE`, id).
		Scan(&req.ID, &req.OwnerID, &req.Amount, &req.Status, &req.RequestedAt)
	if err == sql.ErrNoRows {
		return fault.New(fault.CodeNotFound, "payout request %d not found", id)
	}
	if err != nil {
		return fault.Upstream(err)
	}
	if req.Status != models.PayoutPending {
		return fault.New(fault.CodeConflict, "payout request %d already %s", id, req.Status)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerLockKey(models.OwnerDriver, req.OwnerID)); err != nil {
		return fault.Upstream(err)
	}
	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE owner_type=$1 AND owner_id=$2`,
		models.OwnerDriver, req.OwnerID).Scan(&balance)
	if err != nil {
		return fault.Upstream(err)
	}

	row, status, err := decide(&req, balance)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE payout_requests SET status=$1, reviewed_at=now(), reviewed_by=$2, admin_note=$3
		WHERE id=$4 AND status=$5`,
		status, reviewedBy, note, id, models.PayoutPending)
	if err != nil {
		return fault.Upstream(err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fault.New(fault.CodeConflict, "payout request %d reviewed concurrently", id)
	}
	if row != nil {
		if err := InsertTransactionTx(ctx, tx, *row); err != nil {
			return fault.Upstream(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fault.Upstream(err)
	}
	return nil
}
