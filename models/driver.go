package models

import "time"

type DriverStatus string

const (
	DriverOnline  DriverStatus = "online"
	DriverOnTrip  DriverStatus = "on_trip"
	DriverOffline DriverStatus = "offline"
)

// DriverLocation is the last-known position report for a driver.
// Reports are upserted latest-wins by the location feed; the dispatch
// core only ever reads them.
type DriverLocation struct {
	DriverID   int64        `json:"driver_id"`
	Name       string       `json:"name,omitempty"`
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	Geohash    string       `json:"geohash"`
	Town       string       `json:"town"`
	Status     DriverStatus `json:"status"`
	ReportedAt time.Time    `json:"reported_at"`
}

// Age returns how old the report is relative to now.
func (d *DriverLocation) Age(now time.Time) time.Duration {
	return now.Sub(d.ReportedAt)
}
