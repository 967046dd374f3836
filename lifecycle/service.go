package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

// Service is the sole authority over trip status changes. All writes go
// through compare-and-set store calls; a caller that loses a race gets
// the post-transition state back, never a silent overwrite.
type Service struct {
	Store TripStore

	// PlatformFeePercent fills in fare.platform_fee when a creation
	// request leaves it zero.
	PlatformFeePercent int
}

func NewService(store TripStore, platformFeePercent int) *Service {
	return &Service{Store: store, PlatformFeePercent: platformFeePercent}
}

// CreateRequest is the canonical trip-creation payload. Legacy inbound
// shapes are mapped onto it in the API layer.
type CreateRequest struct {
	Type         models.TripType
	PickupLat    float64
	PickupLng    float64
	PickupLabel  string
	DropoffLat   float64
	DropoffLng   float64
	DropoffLabel string
	Town         string
	PassengerID  int64
	VendorID     *int64
	DriverID     *int64 // pre-assigned driver, optional
	Fare         models.FareBreakdown
}

type TransitionResult struct {
	Changed     bool                `json:"changed"`
	Status      models.TripStatus   `json:"status"`
	AllowedNext []models.TripStatus `json:"allowed_next"`
	Trip        *models.Trip        `json:"trip,omitempty"`
}

// Create validates and persists a new trip. With a pre-assigned driver
// the trip is born in assigned; otherwise it starts in requested.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Trip, error) {
	switch req.Type {
	case models.TripRide, models.TripTakeout, models.TripErrand:
	default:
		return nil, fault.New(fault.CodeValidation, "unknown trip_type %q", req.Type)
	}
	if strings.TrimSpace(req.Town) == "" {
		return nil, fault.New(fault.CodeValidation, "town is required")
	}
	if req.Type == models.TripTakeout && req.VendorID == nil {
		return nil, fault.New(fault.CodeValidation, "takeout trips require a vendor_id")
	}

	fare := req.Fare
	if fare.GrandTotal == 0 {
		fare.GrandTotal = fare.ItemsTotal + fare.DeliveryFee + fare.PlatformFee + fare.OtherFees
	}
	if fare.PlatformFee == 0 && s.PlatformFeePercent > 0 {
		fare.PlatformFee = fare.GrandTotal * int64(s.PlatformFeePercent) / 100
	}

	now := time.Now().UTC()
	trip := &models.Trip{
		Code:             newTripCode(),
		Status:           models.StatusRequested,
		Type:             req.Type,
		PickupLat:        req.PickupLat,
		PickupLng:        req.PickupLng,
		PickupLabel:      req.PickupLabel,
		DropoffLat:       req.DropoffLat,
		DropoffLng:       req.DropoffLng,
		DropoffLabel:     req.DropoffLabel,
		Town:             req.Town,
		PassengerID:      req.PassengerID,
		VendorID:         req.VendorID,
		AssignedDriverID: req.DriverID,
		Fare:             fare,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.DriverID != nil {
		trip.Status = models.StatusAssigned
	}
	if req.Type == models.TripTakeout {
		trip.FulfillmentStatus = models.FulfillPreparing
	}
	if err := s.Store.Create(ctx, trip); err != nil {
		return nil, fault.Upstream(err)
	}
	return trip, nil
}

// Inspect returns the trip, its current status, and the authoritative
// allowed-next set. UIs must not infer legality locally.
func (s *Service) Inspect(ctx context.Context, ref string) (*TransitionResult, error) {
	trip, err := s.Store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{
		Changed:     false,
		Status:      trip.Status,
		AllowedNext: MainFlow.AllowedNext(trip.Status),
		Trip:        trip,
	}, nil
}

// Transition moves a trip along the main flow. Re-requesting the
// current status succeeds with changed=false. Moving into assigned is
// rejected here because it must carry a driver id; use dispatch.Assign.
// Moving into completed posts wallet earnings in the same transaction
// as the status write.
func (s *Service) Transition(ctx context.Context, ref string, next models.TripStatus, actor models.Actor) (*TransitionResult, error) {
	trip, err := s.Store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	changed, err := MainFlow.Check(trip.Status, next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.result(trip), nil
	}
	if next == models.StatusAssigned {
		return nil, fault.New(fault.CodeValidation, "transition into assigned must carry a driver; use assign")
	}

	var ok bool
	if next == models.StatusCompleted {
		postings := CompletionPostings(trip, actor, time.Now().UTC())
		if len(postings) == 0 {
			return nil, fault.New(fault.CodeValidation, "cannot complete trip %s without an assigned driver", trip.Code)
		}
		ok, err = s.Store.CompleteWithPostings(ctx, trip.ID, trip.Status, postings)
	} else {
		ok, err = s.Store.UpdateStatus(ctx, trip.ID, trip.Status, next)
	}
	if err != nil {
		return nil, fault.Upstream(err)
	}
	if !ok {
		return s.loseRace(ctx, ref, next)
	}

	trip.Status = next
	trip.UpdatedAt = time.Now().UTC()
	res := s.result(trip)
	res.Changed = true
	return res, nil
}

// TransitionFulfillment drives the vendor sub-flow on takeout trips.
// Successor-or-no-op only; there is no cancel edge on this flow.
func (s *Service) TransitionFulfillment(ctx context.Context, ref string, next models.TripStatus, actor models.Actor) (*TransitionResult, error) {
	trip, err := s.Store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if trip.Type != models.TripTakeout {
		return nil, fault.New(fault.CodeValidation, "trip %s has no fulfillment flow", trip.Code)
	}

	changed, err := VendorFlow.Check(trip.FulfillmentStatus, next)
	if err != nil {
		return nil, err
	}
	res := &TransitionResult{
		Status:      trip.FulfillmentStatus,
		AllowedNext: VendorFlow.AllowedNext(trip.FulfillmentStatus),
		Trip:        trip,
	}
	if !changed {
		return res, nil
	}

	ok, err := s.Store.UpdateFulfillment(ctx, trip.ID, trip.FulfillmentStatus, next)
	if err != nil {
		return nil, fault.Upstream(err)
	}
	if !ok {
		fresh, gerr := s.Store.GetByRef(ctx, ref)
		if gerr != nil {
			return nil, gerr
		}
		if fresh.FulfillmentStatus == next {
			return &TransitionResult{Status: next, AllowedNext: VendorFlow.AllowedNext(next), Trip: fresh}, nil
		}
		return nil, fault.Transition(string(fresh.FulfillmentStatus), string(next))
	}

	trip.FulfillmentStatus = next
	res.Changed = true
	res.Status = next
	res.AllowedNext = VendorFlow.AllowedNext(next)
	return res, nil
}

// loseRace re-reads after a failed compare-and-set. If a concurrent
// winner already applied the same status the retry collapses into the
// idempotent no-op; anything else is a conflict surfaced with both
// sides.
func (s *Service) loseRace(ctx context.Context, ref string, next models.TripStatus) (*TransitionResult, error) {
	fresh, err := s.Store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if fresh.Status == next {
		return s.result(fresh), nil
	}
	return nil, fault.Transition(string(fresh.Status), string(next))
}

func (s *Service) result(t *models.Trip) *TransitionResult {
	return &TransitionResult{
		Changed:     false,
		Status:      t.Status,
		AllowedNext: MainFlow.AllowedNext(t.Status),
		Trip:        t,
	}
}

func newTripCode() string {
	return "T-" + strings.ToUpper(uuid.NewString()[:8])
}
