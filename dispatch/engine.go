package dispatch

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/lifecycle"
	"trip-dispatch-system/locations"
	"trip-dispatch-system/models"
)

// Engine selects and assigns drivers. Candidate eligibility: location
// report fresh, within radius of pickup, and (ordinary path) same town
// as the pickup — the ordinance. The emergency override bypasses the
// town check for elevated actors and leaves an audit trail.
type Engine struct {
	Locations     locations.Source
	Trips         lifecycle.TripStore
	LookupTimeout time.Duration
}

func NewEngine(src locations.Source, trips lifecycle.TripStore, lookupTimeout time.Duration) *Engine {
	if lookupTimeout <= 0 {
		lookupTimeout = 3 * time.Second
	}
	return &Engine{Locations: src, Trips: trips, LookupTimeout: lookupTimeout}
}

// precisionFor picks a geohash cell size wide enough that the 3x3
// neighborhood around the pickup covers the search radius.
func precisionFor(radiusKm float64) uint {
	switch {
	case radiusKm <= 5:
		return 5
	case radiusKm <= 20:
		return 4
	default:
		return 3
	}
}

// FindNearestDriver returns the closest eligible driver or nil when
// none qualifies — an empty result, not an error. The lookup is bounded
// by the engine timeout; on expiry it degrades to "none found".
func (e *Engine) FindNearestDriver(ctx context.Context, pickupLat, pickupLng float64, town string, radiusKm float64, freshness time.Duration) (*models.DriverLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.LookupTimeout)
	defer cancel()

	center := geohash.EncodeWithPrecision(pickupLat, pickupLng, precisionFor(radiusKm))
	cells := append(geohash.Neighbors(center), center)

	candidates, err := e.Locations.Candidates(ctx, cells)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fault.Upstream(err)
	}

	now := time.Now().UTC()
	eligible := candidates[:0]
	for _, c := range candidates {
		if c.Status != models.DriverOnline {
			continue
		}
		if !locations.Fresh(&c, now, freshness) {
			continue
		}
		if town != "" && !sameTown(c.Town, town) {
			continue
		}
		eligible = append(eligible, c)
	}

	eligible = radiusPrefilter(pickupLat, pickupLng, radiusKm, eligible)

	type ranked struct {
		loc  models.DriverLocation
		dist float64
	}
	inRange := make([]ranked, 0, len(eligible))
	for _, c := range eligible {
		d := HaversineKm(pickupLat, pickupLng, c.Latitude, c.Longitude)
		if d <= radiusKm {
			inRange = append(inRange, ranked{loc: c, dist: d})
		}
	}
	if len(inRange) == 0 {
		return nil, nil
	}

	// Ascending distance; equal distances fall back to driver id. The
	// tie-break is an implementation choice, not a guaranteed ordering.
	sort.Slice(inRange, func(i, j int) bool {
		if inRange[i].dist != inRange[j].dist {
			return inRange[i].dist < inRange[j].dist
		}
		return inRange[i].loc.DriverID < inRange[j].loc.DriverID
	})
	best := inRange[0].loc
	return &best, nil
}

// Assign puts a driver on a trip, either on creation (from requested)
// or as a reassignment (from assigned; the prior driver stays in the
// audit history). Cross-town assignment is an ORDINANCE_VIOLATION
// unless an elevated actor supplies an override reason.
func (e *Engine) Assign(ctx context.Context, tripRef string, driverID int64, actor models.Actor, overrideReason string) (*models.Trip, error) {
	trip, err := e.Trips.GetByRef(ctx, tripRef)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.StatusRequested && trip.Status != models.StatusAssigned {
		return nil, fault.Transition(string(trip.Status), string(models.StatusAssigned))
	}

	loc, err := e.Locations.Get(ctx, driverID)
	if err != nil {
		return nil, fault.Upstream(err)
	}
	if loc == nil {
		return nil, fault.New(fault.CodeValidation, "driver %d has no location report", driverID)
	}

	override := false
	if !sameTown(loc.Town, trip.Town) {
		if !actor.Elevated() {
			return nil, fault.New(fault.CodeOrdinance,
				"driver %d is in %s, trip pickup is in %s; override requires an elevated actor",
				driverID, loc.Town, trip.Town)
		}
		if strings.TrimSpace(overrideReason) == "" {
			return nil, fault.New(fault.CodeValidation, "emergency override requires a reason")
		}
		override = true
	}

	audit := lifecycle.AssignmentAudit{
		TripID:         trip.ID,
		DriverID:       driverID,
		PrevDriverID:   trip.AssignedDriverID,
		Actor:          actor.ID,
		OverrideUsed:   override,
		OverrideReason: strings.TrimSpace(overrideReason),
		CreatedAt:      time.Now().UTC(),
	}
	ok, err := e.Trips.AssignDriver(ctx, trip.ID, driverID, trip.Status, audit)
	if err != nil {
		return nil, fault.Upstream(err)
	}
	if !ok {
		fresh, gerr := e.Trips.GetByRef(ctx, tripRef)
		if gerr != nil {
			return nil, gerr
		}
		if fresh.Status == models.StatusAssigned && fresh.AssignedDriverID != nil && *fresh.AssignedDriverID == driverID {
			return fresh, nil
		}
		return nil, fault.Transition(string(fresh.Status), string(models.StatusAssigned))
	}
	return e.Trips.GetByRef(ctx, tripRef)
}

func sameTown(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
