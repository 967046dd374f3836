package dispatch

import (
	"math"
	"testing"

	"trip-dispatch-system/models"
)

func TestHaversineKm(t *testing.T) {
	if d := HaversineKm(16.80, 121.12, 16.80, 121.12); d != 0 {
		t.Errorf("zero distance = %v", d)
	}

	// one degree of latitude is about 111.2 km
	d := HaversineKm(16.0, 121.0, 17.0, 121.0)
	if math.Abs(d-111.2) > 0.5 {
		t.Errorf("1 degree latitude = %v km, want about 111.2", d)
	}

	if HaversineKm(16.80, 121.12, 16.81, 121.13) != HaversineKm(16.81, 121.13, 16.80, 121.12) {
		t.Error("distance must be symmetric")
	}
}

func TestPrecisionFor(t *testing.T) {
	cases := []struct {
		radius float64
		want   uint
	}{
		{1, 5},
		{5, 5},
		{10, 4},
		{20, 4},
		{50, 3},
	}
	for _, tc := range cases {
		if got := precisionFor(tc.radius); got != tc.want {
			t.Errorf("precisionFor(%v) = %d, want %d", tc.radius, got, tc.want)
		}
	}
}

func TestRadiusPrefilterDropsFarCandidates(t *testing.T) {
	candidates := []models.DriverLocation{
		{DriverID: 1, Latitude: 16.809, Longitude: 121.12}, // ~1km
		{DriverID: 2, Latitude: 17.70, Longitude: 121.12},  // ~100km
	}

	out := radiusPrefilter(16.80, 121.12, 5, candidates)
	if len(out) != 1 || out[0].DriverID != 1 {
		t.Fatalf("prefilter = %+v, want only driver 1", out)
	}

	if out := radiusPrefilter(16.80, 121.12, 5, nil); out != nil {
		t.Errorf("empty input must yield nil, got %+v", out)
	}
}
