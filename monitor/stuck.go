// Package monitor flags trips whose time-in-status exceeds thresholds.
// Everything here is a pure function over a trip snapshot — it never
// writes anything; consumers decide what to do with the findings.
package monitor

import (
	"sort"
	"time"

	"trip-dispatch-system/models"
)

type Flag string

const (
	FlagStuck      Flag = "STUCK"
	FlagData       Flag = "DATA"
	FlagUnassigned Flag = "UNASSIGNED_TOO_LONG"
	FlagAtRisk     Flag = "AT_RISK"
)

type Thresholds struct {
	OnTheWay        time.Duration
	OnTrip          time.Duration
	Unassigned      time.Duration
	CancelledRecent time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		OnTheWay:        15 * time.Minute,
		OnTrip:          25 * time.Minute,
		Unassigned:      20 * time.Minute,
		CancelledRecent: 60 * time.Minute,
	}
}

// Finding is one flagged trip with its age and every reason that applied.
type Finding struct {
	Trip  *models.Trip  `json:"trip"`
	Age   time.Duration `json:"-"`
	AgeMs int64         `json:"age_ms"`
	Flags []Flag        `json:"flags"`
}

// Report groups findings the way the ops screens consume them. Each
// bucket is sorted oldest-first (age descending).
type Report struct {
	Stuck           []Finding `json:"stuck"`
	Unassigned      []Finding `json:"unassigned"`
	AtRisk          []Finding `json:"at_risk"`
	CancelledRecent []Finding `json:"cancelled_recent"`
}

// activeStatuses are the states in which a trip should have plottable
// coordinates; a trip here without them is flagged DATA.
var activeStatuses = map[models.TripStatus]bool{
	models.StatusRequested: true,
	models.StatusAssigned:  true,
	models.StatusOnTheWay:  true,
	models.StatusArrived:   true,
	models.StatusEnroute:   true,
	models.StatusOnTrip:    true,
}

// Classify returns the reasons a single trip deserves attention, with
// its age. Age is measured from the most recent of created/updated.
func Classify(t *models.Trip, th Thresholds, now time.Time) (time.Duration, []Flag) {
	ref := t.CreatedAt
	if t.UpdatedAt.After(ref) {
		ref = t.UpdatedAt
	}
	age := now.Sub(ref)

	var flags []Flag
	if (t.Status == models.StatusOnTheWay && age >= th.OnTheWay) ||
		(t.Status == models.StatusOnTrip && age >= th.OnTrip) {
		flags = append(flags, FlagStuck)
	}
	if activeStatuses[t.Status] && !t.HasValidCoordinates() {
		flags = append(flags, FlagData)
	}
	if t.Status == models.StatusRequested && t.AssignedDriverID == nil && age >= th.Unassigned {
		flags = append(flags, FlagUnassigned)
	}
	if t.AtRisk {
		flags = append(flags, FlagAtRisk)
	}
	return age, flags
}

// Build classifies a snapshot of trips into the report buckets.
func Build(trips []*models.Trip, th Thresholds, now time.Time) Report {
	var report Report
	for _, t := range trips {
		age, flags := Classify(t, th, now)
		f := Finding{Trip: t, Age: age, AgeMs: age.Milliseconds(), Flags: flags}

		if t.Status == models.StatusCancelled {
			if age <= th.CancelledRecent {
				report.CancelledRecent = append(report.CancelledRecent, f)
			}
			continue
		}
		for _, flag := range flags {
			switch flag {
			case FlagStuck, FlagData:
				report.Stuck = appendOnce(report.Stuck, f)
			case FlagUnassigned:
				report.Unassigned = append(report.Unassigned, f)
			case FlagAtRisk:
				report.AtRisk = append(report.AtRisk, f)
			}
		}
	}
	for _, bucket := range [][]Finding{report.Stuck, report.Unassigned, report.AtRisk, report.CancelledRecent} {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Age > bucket[j].Age })
	}
	return report
}

func appendOnce(bucket []Finding, f Finding) []Finding {
	if n := len(bucket); n > 0 && bucket[n-1].Trip == f.Trip {
		return bucket
	}
	return append(bucket, f)
}
