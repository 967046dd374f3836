package dispatch

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"trip-dispatch-system/models"
)

// candidatePoint wraps a driver location so it can live in the R-tree.
type candidatePoint struct {
	loc models.DriverLocation
}

func (c *candidatePoint) Bounds() *rtreego.Rect {
	return rtreego.Point{c.loc.Latitude, c.loc.Longitude}.ToRect(1e-6)
}

// radiusPrefilter drops candidates outside a bounding box around the
// pickup before the exact haversine ranking. The box is intentionally
// generous (degree deltas for the radius at this latitude); the exact
// cut happens on the ranked distance.
func radiusPrefilter(pickupLat, pickupLng, radiusKm float64, candidates []models.DriverLocation) []models.DriverLocation {
	if len(candidates) == 0 {
		return nil
	}

	tree := rtreego.NewTree(2, 25, 50)
	for i := range candidates {
		tree.Insert(&candidatePoint{loc: candidates[i]})
	}

	latDelta := radiusKm / 110.574
	lngDelta := radiusKm / (111.320 * math.Cos(radians(pickupLat)))
	if lngDelta < 0 {
		lngDelta = -lngDelta
	}
	delta := math.Max(latDelta, lngDelta)

	hits := tree.SearchIntersect(rtreego.Point{pickupLat, pickupLng}.ToRect(delta))
	out := make([]models.DriverLocation, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*candidatePoint).loc)
	}
	return out
}
