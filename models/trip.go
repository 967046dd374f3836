package models

import "time"

type TripStatus string

const (
	StatusRequested TripStatus = "requested"
	StatusAssigned  TripStatus = "assigned"
	StatusOnTheWay  TripStatus = "on_the_way"
	StatusArrived   TripStatus = "arrived"
	StatusEnroute   TripStatus = "enroute"
	StatusOnTrip    TripStatus = "on_trip"
	StatusCompleted TripStatus = "completed"
	StatusCancelled TripStatus = "cancelled"
)

// Vendor fulfillment sub-flow statuses (takeout trips only).
const (
	FulfillPreparing     TripStatus = "preparing"
	FulfillReady         TripStatus = "ready"
	FulfillDriverArrived TripStatus = "driver_arrived"
	FulfillPickedUp      TripStatus = "picked_up"
)

type TripType string

const (
	TripRide    TripType = "ride"
	TripTakeout TripType = "takeout"
	TripErrand  TripType = "errand"
)

// FareBreakdown holds all fare components in centavos.
type FareBreakdown struct {
	ItemsTotal  int64 `json:"items_total"`
	DeliveryFee int64 `json:"delivery_fee"`
	PlatformFee int64 `json:"platform_fee"`
	OtherFees   int64 `json:"other_fees"`
	GrandTotal  int64 `json:"grand_total"`
}

// Trip is the canonical booking record. Inbound payloads are normalized
// into this shape at the API boundary; the core never sees raw maps.
type Trip struct {
	ID                int64         `json:"id"`
	Code              string        `json:"code"`
	Status            TripStatus    `json:"status"`
	FulfillmentStatus TripStatus    `json:"fulfillment_status,omitempty"`
	Type              TripType      `json:"trip_type"`
	PickupLat         float64       `json:"pickup_latitude"`
	PickupLng         float64       `json:"pickup_longitude"`
	PickupLabel       string        `json:"pickup_label"`
	DropoffLat        float64       `json:"dropoff_latitude"`
	DropoffLng        float64       `json:"dropoff_longitude"`
	DropoffLabel      string        `json:"dropoff_label"`
	Town              string        `json:"town"`
	PassengerID       int64         `json:"passenger_id,omitempty"`
	AssignedDriverID  *int64        `json:"assigned_driver_id,omitempty"`
	VendorID          *int64        `json:"vendor_id,omitempty"`
	Fare              FareBreakdown `json:"fare_breakdown"`
	AtRisk            bool          `json:"at_risk,omitempty"`
	OverrideUsed      bool          `json:"override_used,omitempty"`
	OverrideActor     string        `json:"override_actor,omitempty"`
	OverrideReason    string        `json:"override_reason,omitempty"`
	OverrideAt        *time.Time    `json:"override_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Terminal reports whether no further transitions are possible.
func (s TripStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasValidCoordinates reports whether both pickup and dropoff can be
// plotted. (0,0) is treated as unset, not a real point in the service area.
func (t *Trip) HasValidCoordinates() bool {
	return validLatLng(t.PickupLat, t.PickupLng) && validLatLng(t.DropoffLat, t.DropoffLng)
}

func validLatLng(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
