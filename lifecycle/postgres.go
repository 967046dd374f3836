package lifecycle

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
	"trip-dispatch-system/wallet"
)

// PostgresTripStore persists trips in the trips table and assignment
// history in trip_assignments. Status moves are single UPDATEs guarded
// by the expected current status.
type PostgresTripStore struct {
	DB *sql.DB
}

func NewPostgresTripStore(db *sql.DB) *PostgresTripStore {
	return &PostgresTripStore{DB: db}
}

const tripColumns = `id, code, status, COALESCE(fulfillment_status, ''), trip_type,
	pickup_lat, pickup_lng, pickup_label, dropoff_lat, dropoff_lng, dropoff_label,
	town, passenger_id, assigned_driver_id, vendor_id,
	items_total, delivery_fee, platform_fee, other_fees, grand_total,
	at_risk, override_used, COALESCE(override_actor, ''), COALESCE(override_reason, ''), override_at,
	created_at, updated_at`

func scanTrip(row interface{ Scan(...interface{}) error }) (*models.Trip, error) {
	var t models.Trip
	err := row.Scan(
		&t.ID, &t.Code, &t.Status, &t.FulfillmentStatus, &t.Type,
		&t.PickupLat, &t.PickupLng, &t.PickupLabel, &t.DropoffLat, &t.DropoffLng, &t.DropoffLabel,
		&t.Town, &t.PassengerID, &t.AssignedDriverID, &t.VendorID,
		&t.Fare.ItemsTotal, &t.Fare.DeliveryFee, &t.Fare.PlatformFee, &t.Fare.OtherFees, &t.Fare.GrandTotal,
		&t.AtRisk, &t.OverrideUsed, &t.OverrideActor, &t.OverrideReason, &t.OverrideAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresTripStore) GetByRef(ctx context.Context, ref string) (*models.Trip, error) {
	var row *sql.Row
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		row = s.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id)
	} else {
		row = s.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE code=$1`, ref)
	}
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.CodeNotFound, "trip %s not found", ref)
	}
	if err != nil {
		return nil, fault.Upstream(err)
	}
	return t, nil
}

func (s *PostgresTripStore) Create(ctx context.Context, t *models.Trip) error {
	var fulfillment *models.TripStatus
	if t.FulfillmentStatus != "" {
		fulfillment = &t.FulfillmentStatus
	}
	return s.DB.QueryRowContext(ctx, `
		INSERT INTO trips (code, status, fulfillment_status, trip_type,
			pickup_lat, pickup_lng, pickup_label, dropoff_lat, dropoff_lng, dropoff_label,
			town, passenger_id, assigned_driver_id, vendor_id,
			items_total, delivery_fee, platform_fee, other_fees, grand_total,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
		RETURNING id`,
		t.Code, t.Status, fulfillment, t.Type,
		t.PickupLat, t.PickupLng, t.PickupLabel, t.DropoffLat, t.DropoffLng, t.DropoffLabel,
		t.Town, t.PassengerID, t.AssignedDriverID, t.VendorID,
		t.Fare.ItemsTotal, t.Fare.DeliveryFee, t.Fare.PlatformFee, t.Fare.OtherFees, t.Fare.GrandTotal,
		t.CreatedAt,
	).Scan(&t.ID)
}

func (s *PostgresTripStore) UpdateStatus(ctx context.Context, tripID int64, from, to models.TripStatus) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE trips SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		to, tripID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PostgresTripStore) UpdateFulfillment(ctx context.Context, tripID int64, from, to models.TripStatus) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE trips SET fulfillment_status=$1, updated_at=now() WHERE id=$2 AND fulfillment_status=$3`,
		to, tripID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PostgresTripStore) AssignDriver(ctx context.Context, tripID int64, driverID int64, from models.TripStatus, audit AssignmentAudit) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var res sql.Result
	if audit.OverrideUsed {
		res, err = tx.ExecContext(ctx, `
			UPDATE trips SET status=$1, assigned_driver_id=$2,
				override_used=true, override_actor=$3, override_reason=$4, override_at=now(),
				updated_at=now()
			WHERE id=$5 AND status=$6`,
			models.StatusAssigned, driverID, audit.Actor, audit.OverrideReason, tripID, from)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE trips SET status=$1, assigned_driver_id=$2, updated_at=now()
			WHERE id=$3 AND status=$4`,
			models.StatusAssigned, driverID, tripID, from)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trip_assignments (trip_id, driver_id, prev_driver_id, actor, override_used, override_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())`,
		tripID, driverID, audit.PrevDriverID, audit.Actor, audit.OverrideUsed, audit.OverrideReason)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *PostgresTripStore) CompleteWithPostings(ctx context.Context, tripID int64, from models.TripStatus, postings []models.WalletTransaction) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE trips SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		models.StatusCompleted, tripID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	for _, p := range postings {
		if err := wallet.InsertTransactionTx(ctx, tx, p); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

func (s *PostgresTripStore) Assignments(ctx context.Context, tripID int64) ([]AssignmentAudit, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT trip_id, driver_id, prev_driver_id, actor, override_used, COALESCE(override_reason, ''), created_at
		FROM trip_assignments WHERE trip_id=$1 ORDER BY created_at, id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssignmentAudit
	for rows.Next() {
		var a AssignmentAudit
		if err := rows.Scan(&a.TripID, &a.DriverID, &a.PrevDriverID, &a.Actor, &a.OverrideUsed, &a.OverrideReason, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresTripStore) ActiveTrips(ctx context.Context, cancelledWithin time.Duration) ([]*models.Trip, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE status NOT IN ($1, $2)
		   OR (status = $2 AND updated_at >= now() - $3 * interval '1 minute')`,
		models.StatusCompleted, models.StatusCancelled, cancelledWithin.Minutes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
