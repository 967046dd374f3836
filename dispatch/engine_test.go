package dispatch

import (
	"context"
	"testing"
	"time"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/lifecycle"
	"trip-dispatch-system/models"
)

// fakeSource serves a fixed set of driver locations and ignores the
// cell filter, which is the Redis store's concern.
type fakeSource struct {
	drivers map[int64]models.DriverLocation
}

func (f *fakeSource) Get(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	loc, ok := f.drivers[driverID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (f *fakeSource) Candidates(ctx context.Context, cells []string) ([]models.DriverLocation, error) {
	out := make([]models.DriverLocation, 0, len(f.drivers))
	for _, loc := range f.drivers {
		out = append(out, loc)
	}
	return out, nil
}

const (
	lagaweLat = 16.80
	lagaweLng = 121.12
)

func driverAt(id int64, latOffset float64, town string, status models.DriverStatus, reportedAgo time.Duration) models.DriverLocation {
	return models.DriverLocation{
		DriverID:   id,
		Latitude:   lagaweLat + latOffset,
		Longitude:  lagaweLng,
		Town:       town,
		Status:     status,
		ReportedAt: time.Now().UTC().Add(-reportedAgo),
	}
}

func newTestEngine(src *fakeSource, trips lifecycle.TripStore) *Engine {
	return NewEngine(src, trips, 3*time.Second)
}

// The ordinance: a same-town driver 2km out beats a nearer driver
// registered to the neighboring town.
func TestFindNearestRespectsTownOrdinance(t *testing.T) {
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		1: driverAt(1, 0.018, "Lagawe", models.DriverOnline, time.Minute),  // ~2km
		2: driverAt(2, 0.009, "Kiangan", models.DriverOnline, time.Minute), // ~1km, wrong town
	}}
	eng := newTestEngine(src, lifecycle.NewMemTripStore())

	best, err := eng.FindNearestDriver(context.Background(), lagaweLat, lagaweLng, "Lagawe", 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("FindNearestDriver: %v", err)
	}
	if best == nil {
		t.Fatal("want a driver, got none")
	}
	if best.DriverID != 1 {
		t.Errorf("picked driver %d, want same-town driver 1", best.DriverID)
	}
}

func TestFindNearestExclusions(t *testing.T) {
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		1: driverAt(1, 0.009, "Lagawe", models.DriverOffline, time.Minute),   // offline
		2: driverAt(2, 0.009, "Lagawe", models.DriverOnTrip, time.Minute),    // busy
		3: driverAt(3, 0.009, "Lagawe", models.DriverOnline, 30*time.Minute), // stale
		4: driverAt(4, 0.09, "Lagawe", models.DriverOnline, time.Minute),     // ~10km, outside radius
	}}
	eng := newTestEngine(src, lifecycle.NewMemTripStore())

	best, err := eng.FindNearestDriver(context.Background(), lagaweLat, lagaweLng, "Lagawe", 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("FindNearestDriver: %v", err)
	}
	if best != nil {
		t.Errorf("want no driver, got %d", best.DriverID)
	}
}

func TestFindNearestTieBreaksOnDriverID(t *testing.T) {
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		9: driverAt(9, 0.009, "Lagawe", models.DriverOnline, time.Minute),
		3: driverAt(3, 0.009, "Lagawe", models.DriverOnline, time.Minute),
	}}
	eng := newTestEngine(src, lifecycle.NewMemTripStore())

	best, err := eng.FindNearestDriver(context.Background(), lagaweLat, lagaweLng, "Lagawe", 5, 10*time.Minute)
	if err != nil || best == nil {
		t.Fatalf("FindNearestDriver: best=%v err=%v", best, err)
	}
	if best.DriverID != 3 {
		t.Errorf("picked driver %d, want lower id 3", best.DriverID)
	}
}

func seedRequested(store *lifecycle.MemTripStore, town string) *models.Trip {
	now := time.Now().UTC()
	return store.Seed(&models.Trip{
		Code:       "T-DISP01",
		Status:     models.StatusRequested,
		Type:       models.TripRide,
		Town:       town,
		PickupLat:  lagaweLat,
		PickupLng:  lagaweLng,
		DropoffLat: 16.81,
		DropoffLng: 121.13,
		Fare:       models.FareBreakdown{GrandTotal: 15000, PlatformFee: 1500},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func TestAssignCrossTownRequiresOverride(t *testing.T) {
	store := lifecycle.NewMemTripStore()
	seedRequested(store, "Lagawe")
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		2: driverAt(2, 0.009, "Kiangan", models.DriverOnline, time.Minute),
	}}
	eng := newTestEngine(src, store)
	ctx := context.Background()

	dispatcher := models.Actor{ID: "ops-1", Role: models.RoleDispatcher}
	if _, err := eng.Assign(ctx, "T-DISP01", 2, dispatcher, "flood emergency"); !fault.Is(err, fault.CodeOrdinance) {
		t.Errorf("non-elevated cross-town: want ORDINANCE_VIOLATION, got %v", err)
	}

	adm := models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	if _, err := eng.Assign(ctx, "T-DISP01", 2, adm, "   "); !fault.Is(err, fault.CodeValidation) {
		t.Errorf("override without reason: want VALIDATION, got %v", err)
	}

	trip, err := eng.Assign(ctx, "T-DISP01", 2, adm, "flood emergency")
	if err != nil {
		t.Fatalf("override assign: %v", err)
	}
	if trip.Status != models.StatusAssigned || trip.AssignedDriverID == nil || *trip.AssignedDriverID != 2 {
		t.Fatalf("trip not assigned to driver 2: %+v", trip)
	}
	if !trip.OverrideUsed || trip.OverrideReason != "flood emergency" || trip.OverrideActor != "admin-1" {
		t.Errorf("override audit missing on trip: %+v", trip)
	}

	audits, _ := store.Assignments(ctx, trip.ID)
	if len(audits) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(audits))
	}
	if !audits[0].OverrideUsed || audits[0].OverrideReason != "flood emergency" {
		t.Errorf("audit row missing override fields: %+v", audits[0])
	}
}

func TestAssignRejectsDriverWithoutLocation(t *testing.T) {
	store := lifecycle.NewMemTripStore()
	seedRequested(store, "Lagawe")
	eng := newTestEngine(&fakeSource{drivers: map[int64]models.DriverLocation{}}, store)

	actor := models.Actor{ID: "ops-1", Role: models.RoleDispatcher}
	_, err := eng.Assign(context.Background(), "T-DISP01", 5, actor, "")
	if !fault.Is(err, fault.CodeValidation) {
		t.Fatalf("want VALIDATION, got %v", err)
	}
}

func TestAssignFromLateStatusRejected(t *testing.T) {
	store := lifecycle.NewMemTripStore()
	trip := seedRequested(store, "Lagawe")
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		1: driverAt(1, 0.009, "Lagawe", models.DriverOnline, time.Minute),
	}}
	eng := newTestEngine(src, store)
	ctx := context.Background()

	if _, err := eng.Assign(ctx, trip.Code, 1, models.Actor{ID: "ops-1", Role: models.RoleDispatcher}, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	store.UpdateStatus(ctx, trip.ID, models.StatusAssigned, models.StatusOnTheWay)

	_, err := eng.Assign(ctx, trip.Code, 1, models.Actor{ID: "ops-1", Role: models.RoleDispatcher}, "")
	if !fault.Is(err, fault.CodeInvalidTransition) {
		t.Fatalf("want INVALID_TRANSITION, got %v", err)
	}
}

func TestReassignmentKeepsAuditHistory(t *testing.T) {
	store := lifecycle.NewMemTripStore()
	trip := seedRequested(store, "Lagawe")
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		1: driverAt(1, 0.009, "Lagawe", models.DriverOnline, time.Minute),
		2: driverAt(2, 0.018, "Lagawe", models.DriverOnline, time.Minute),
	}}
	eng := newTestEngine(src, store)
	ctx := context.Background()
	actor := models.Actor{ID: "ops-1", Role: models.RoleDispatcher}

	if _, err := eng.Assign(ctx, trip.Code, 1, actor, ""); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	got, err := eng.Assign(ctx, trip.Code, 2, actor, "")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.AssignedDriverID == nil || *got.AssignedDriverID != 2 {
		t.Fatalf("trip not on driver 2: %+v", got)
	}

	audits, _ := store.Assignments(ctx, trip.ID)
	if len(audits) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(audits))
	}
	if audits[1].PrevDriverID == nil || *audits[1].PrevDriverID != 1 {
		t.Errorf("second audit must carry prior driver 1: %+v", audits[1])
	}
}

// Full happy path: requested, nearest-driver assign, step to completed,
// and the ledger ends with net earnings plus a separate platform fee.
func TestAssignThenCompleteFlow(t *testing.T) {
	store := lifecycle.NewMemTripStore()
	trip := seedRequested(store, "Lagawe")
	src := &fakeSource{drivers: map[int64]models.DriverLocation{
		1: driverAt(1, 0.009, "Lagawe", models.DriverOnline, time.Minute),
	}}
	eng := newTestEngine(src, store)
	svc := lifecycle.NewService(store, 10)
	ctx := context.Background()
	actor := models.Actor{ID: "ops-1", Role: models.RoleDispatcher}

	best, err := eng.FindNearestDriver(ctx, trip.PickupLat, trip.PickupLng, trip.Town, 5, 10*time.Minute)
	if err != nil || best == nil {
		t.Fatalf("FindNearestDriver: best=%v err=%v", best, err)
	}
	if _, err := eng.Assign(ctx, trip.Code, best.DriverID, actor, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}

	for _, next := range []models.TripStatus{
		models.StatusOnTheWay, models.StatusArrived, models.StatusEnroute,
		models.StatusOnTrip, models.StatusCompleted,
	} {
		res, err := svc.Transition(ctx, trip.Code, next, actor)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if !res.Changed {
			t.Fatalf("transition to %s reported changed=false", next)
		}
	}

	var earnings, fees int64
	for _, row := range store.Ledger {
		switch row.Kind {
		case models.KindTripEarning:
			earnings += row.Amount
		case models.KindPlatformFee:
			fees += row.Amount
		}
	}
	if earnings != 13500 {
		t.Errorf("earnings = %d, want grand_total - platform_fee = 13500", earnings)
	}
	if fees != 1500 {
		t.Errorf("platform fee = %d, want 1500", fees)
	}
}
