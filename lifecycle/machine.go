package lifecycle

import (
	"trip-dispatch-system/fault"
	"trip-dispatch-system/models"
)

// Flow is a linear status sequence with an optional escape edge to a
// cancel state. Both the main trip flow and the vendor fulfillment
// sub-flow are instances of this one type; legality is always
// no-op (next == current) or successor (index + 1), plus the cancel
// edge from any non-terminal state when the flow has one.
type Flow struct {
	Name     string
	Order    []models.TripStatus
	CancelTo models.TripStatus // empty = no cancel edge
}

// MainFlow is the primary trip lifecycle.
var MainFlow = Flow{
	Name: "trip",
	Order: []models.TripStatus{
		models.StatusRequested,
		models.StatusAssigned,
		models.StatusOnTheWay,
		models.StatusArrived,
		models.StatusEnroute,
		models.StatusOnTrip,
		models.StatusCompleted,
	},
	CancelTo: models.StatusCancelled,
}

// VendorFlow is the fulfillment sub-flow for takeout trips. It has no
// cancel edge; cancellation happens on the main flow.
var VendorFlow = Flow{
	Name: "fulfillment",
	Order: []models.TripStatus{
		models.FulfillPreparing,
		models.FulfillReady,
		models.FulfillDriverArrived,
		models.FulfillPickedUp,
		models.StatusCompleted,
	},
}

func (f *Flow) indexOf(s models.TripStatus) int {
	for i, st := range f.Order {
		if st == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s is a state of this flow (cancel included).
func (f *Flow) Contains(s models.TripStatus) bool {
	return f.indexOf(s) >= 0 || (f.CancelTo != "" && s == f.CancelTo)
}

func (f *Flow) terminal(s models.TripStatus) bool {
	if f.CancelTo != "" && s == f.CancelTo {
		return true
	}
	i := f.indexOf(s)
	return i >= 0 && i == len(f.Order)-1
}

// AllowedNext returns the statuses a trip in `current` may legally move
// to: the linear successor plus cancel when the state is non-terminal.
// Requesting `current` itself is always accepted as a no-op and is not
// listed here.
func (f *Flow) AllowedNext(current models.TripStatus) []models.TripStatus {
	if f.terminal(current) {
		return nil
	}
	var next []models.TripStatus
	if i := f.indexOf(current); i >= 0 && i+1 < len(f.Order) {
		next = append(next, f.Order[i+1])
	}
	if f.CancelTo != "" {
		next = append(next, f.CancelTo)
	}
	return next
}

// Check validates a requested move. It returns changed=false with no
// error for the idempotent re-request of the current status, and an
// INVALID_TRANSITION fault for skips, backward moves, unknown states,
// and any move out of a terminal state.
func (f *Flow) Check(current, next models.TripStatus) (bool, error) {
	if next == current {
		return false, nil
	}
	if f.terminal(current) {
		return false, fault.Transition(string(current), string(next))
	}
	if f.CancelTo != "" && next == f.CancelTo {
		return true, nil
	}
	ci, ni := f.indexOf(current), f.indexOf(next)
	if ci < 0 || ni < 0 || ni != ci+1 {
		return false, fault.Transition(string(current), string(next))
	}
	return true, nil
}
