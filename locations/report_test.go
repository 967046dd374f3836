package locations

import (
	"testing"
	"time"

	"trip-dispatch-system/models"
)

func TestFromReportNormalization(t *testing.T) {
	loc, err := FromReport(Report{
		DriverID:  7,
		Latitude:  16.80,
		Longitude: 121.12,
		Town:      "Lagawe",
	})
	if err != nil {
		t.Fatalf("FromReport: %v", err)
	}
	if loc.Status != models.DriverOnline {
		t.Errorf("missing status must default to online, got %s", loc.Status)
	}
	if loc.ReportedAt.IsZero() {
		t.Error("missing timestamp must default to now")
	}

	ts := "2026-08-30T10:15:00Z"
	loc, err = FromReport(Report{DriverID: 7, Status: "offline", Timestamp: ts})
	if err != nil {
		t.Fatalf("FromReport: %v", err)
	}
	if loc.Status != models.DriverOffline {
		t.Errorf("status = %s, want offline", loc.Status)
	}
	want, _ := time.Parse(time.RFC3339, ts)
	if !loc.ReportedAt.Equal(want) {
		t.Errorf("reported_at = %v, want %v", loc.ReportedAt, want)
	}

	// unparsable timestamp falls back to now
	loc, err = FromReport(Report{DriverID: 7, Timestamp: "yesterday-ish"})
	if err != nil {
		t.Fatalf("FromReport: %v", err)
	}
	if time.Since(loc.ReportedAt) > time.Minute {
		t.Errorf("bad timestamp must fall back to now, got %v", loc.ReportedAt)
	}
}

func TestFromReportRejections(t *testing.T) {
	if _, err := FromReport(Report{Latitude: 16.8, Longitude: 121.1}); err == nil {
		t.Error("missing driver_id must be rejected")
	}
	if _, err := FromReport(Report{DriverID: 7, Status: "sleeping"}); err == nil {
		t.Error("unknown status must be rejected")
	}
}

func TestFresh(t *testing.T) {
	now := time.Now().UTC()
	loc := &models.DriverLocation{ReportedAt: now.Add(-5 * time.Minute)}
	if !Fresh(loc, now, 10*time.Minute) {
		t.Error("5m-old report within a 10m window must be fresh")
	}
	if Fresh(loc, now, time.Minute) {
		t.Error("5m-old report outside a 1m window must be stale")
	}
}

func TestCellForStability(t *testing.T) {
	a := CellFor(16.80, 121.12, 5)
	b := CellFor(16.8000001, 121.1200001, 5)
	if a != b {
		t.Errorf("nearby points landed in different cells: %s vs %s", a, b)
	}
	if len(a) != 5 {
		t.Errorf("cell length = %d, want precision 5", len(a))
	}
}
