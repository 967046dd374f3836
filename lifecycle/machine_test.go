package lifecycle

import (
	"testing"

	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

func TestMainFlowIdempotentReRequest(t *testing.T) {
	states := append([]models.TripStatus{}, MainFlow.Order...)
	states = append(states, models.StatusCancelled)
	for _, s := range states {
		changed, err := MainFlow.Check(s, s)
		if err != nil {
			t.Errorf("Check(%s, %s): unexpected error %v", s, s, err)
		}
		if changed {
			t.Errorf("Check(%s, %s): want changed=false", s, s)
		}
	}
}

func TestMainFlowSuccessors(t *testing.T) {
	cases := []struct {
		from, to models.TripStatus
		ok       bool
	}{
		{models.StatusRequested, models.StatusAssigned, true},
		{models.StatusAssigned, models.StatusOnTheWay, true},
		{models.StatusOnTheWay, models.StatusArrived, true},
		{models.StatusArrived, models.StatusEnroute, true},
		{models.StatusEnroute, models.StatusOnTrip, true},
		{models.StatusOnTrip, models.StatusCompleted, true},

		// skips
		{models.StatusRequested, models.StatusOnTheWay, false},
		{models.StatusAssigned, models.StatusCompleted, false},
		// backward moves
		{models.StatusArrived, models.StatusOnTheWay, false},
		{models.StatusOnTrip, models.StatusRequested, false},
		// out of terminal states
		{models.StatusCompleted, models.StatusOnTrip, false},
		{models.StatusCancelled, models.StatusRequested, false},
		{models.StatusCompleted, models.StatusCancelled, false},
		// unknown state
		{models.StatusRequested, models.TripStatus("teleported"), false},
	}
	for _, tc := range cases {
		changed, err := MainFlow.Check(tc.from, tc.to)
		if tc.ok {
			if err != nil || !changed {
				t.Errorf("Check(%s, %s): want changed, got changed=%v err=%v", tc.from, tc.to, changed, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("Check(%s, %s): want rejection", tc.from, tc.to)
			continue
		}
		fe, ok := err.(*fault.Error)
		if !ok || fe.Code != fault.CodeInvalidTransition {
			t.Errorf("Check(%s, %s): want INVALID_TRANSITION, got %v", tc.from, tc.to, err)
		}
		if fe.Current != string(tc.from) || fe.Attempted != string(tc.to) {
			t.Errorf("Check(%s, %s): rejection carries current=%s attempted=%s", tc.from, tc.to, fe.Current, fe.Attempted)
		}
	}
}

func TestCancelReachableFromEveryNonTerminalState(t *testing.T) {
	for _, s := range MainFlow.Order[:len(MainFlow.Order)-1] {
		changed, err := MainFlow.Check(s, models.StatusCancelled)
		if err != nil || !changed {
			t.Errorf("Check(%s, cancelled): want allowed, got changed=%v err=%v", s, changed, err)
		}
	}
}

// Following the first allowed successor must reach completed from
// requested in six steps without revisiting a state.
func TestMainFlowReachesCompletedWithoutLoops(t *testing.T) {
	current := models.StatusRequested
	visited := map[models.TripStatus]bool{current: true}
	for steps := 0; current != models.StatusCompleted; steps++ {
		if steps > 6 {
			t.Fatalf("did not reach completed within 6 steps, at %s", current)
		}
		next := MainFlow.AllowedNext(current)
		if len(next) == 0 {
			t.Fatalf("no allowed successor from %s", current)
		}
		if visited[next[0]] {
			t.Fatalf("revisited state %s", next[0])
		}
		visited[next[0]] = true
		current = next[0]
	}
}

func TestMainFlowAllowedNextTerminalStates(t *testing.T) {
	if got := MainFlow.AllowedNext(models.StatusCompleted); got != nil {
		t.Errorf("AllowedNext(completed) = %v, want none", got)
	}
	if got := MainFlow.AllowedNext(models.StatusCancelled); got != nil {
		t.Errorf("AllowedNext(cancelled) = %v, want none", got)
	}
}

func TestVendorFlowHasNoCancelEdge(t *testing.T) {
	if _, err := VendorFlow.Check(models.FulfillPreparing, models.StatusCancelled); err == nil {
		t.Error("vendor flow must not branch to cancelled")
	}
	changed, err := VendorFlow.Check(models.FulfillReady, models.FulfillDriverArrived)
	if err != nil || !changed {
		t.Errorf("ready -> driver_arrived: want allowed, got changed=%v err=%v", changed, err)
	}
	if _, err := VendorFlow.Check(models.FulfillPreparing, models.FulfillDriverArrived); err == nil {
		t.Error("vendor flow must not allow skipping")
	}
	if _, err := VendorFlow.Check(models.FulfillPickedUp, models.FulfillReady); err == nil {
		t.Error("vendor flow must not allow backward moves")
	}
}
