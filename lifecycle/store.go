package lifecycle

import (
	"context"
	"time"

	"trip-dispatch-system/models"
)

// AssignmentAudit is one append-only row in the assignment history.
// Prior driver ids stay recoverable here after a reassignment.
type AssignmentAudit struct {
	TripID         int64
	DriverID       int64
	PrevDriverID   *int64
	Actor          string
	OverrideUsed   bool
	OverrideReason string
	CreatedAt      time.Time
}

// TripStore is the persistence contract for trips. Every mutating call
// is a compare-and-set on the current status so concurrent transition
// attempts linearize: exactly one caller observes ok=true, the rest
// re-read and see the post-transition state.
type TripStore interface {
	GetByRef(ctx context.Context, ref string) (*models.Trip, error)
	Create(ctx context.Context, t *models.Trip) error

	// UpdateStatus moves status from->to. ok=false when the row was no
	// longer in `from`.
	UpdateStatus(ctx context.Context, tripID int64, from, to models.TripStatus) (bool, error)

	// UpdateFulfillment moves the vendor sub-flow status from->to.
	UpdateFulfillment(ctx context.Context, tripID int64, from, to models.TripStatus) (bool, error)

	// AssignDriver sets status=assigned and the driver id in a single
	// write (no window where status=assigned with a nil driver), stamps
	// override audit fields when audit.OverrideUsed, and appends the
	// audit row, all atomically.
	AssignDriver(ctx context.Context, tripID int64, driverID int64, from models.TripStatus, audit AssignmentAudit) (bool, error)

	// CompleteWithPostings moves status from->completed and appends the
	// wallet postings in one transaction: both happen or neither does.
	CompleteWithPostings(ctx context.Context, tripID int64, from models.TripStatus, postings []models.WalletTransaction) (bool, error)

	// Assignments returns the audit history for a trip, oldest first.
	Assignments(ctx context.Context, tripID int64) ([]AssignmentAudit, error)

	// ActiveTrips returns all trips not yet completed, plus trips
	// cancelled within the given window, for the SLA monitor.
	ActiveTrips(ctx context.Context, cancelledWithin time.Duration) ([]*models.Trip, error)
}
