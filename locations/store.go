// Package locations keeps the last-known driver positions in Redis.
// The dispatch engine only ever reads from here; writes come from the
// HTTP report endpoint and the AMQP feed, latest report wins.
package locations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mmcloughlin/geohash"

	"trip-dispatch-system/models"
)

// Store lays out keys the same way the geo cache always has:
// driver:location:<id> holds the JSON document, drivers:<geohash>
// sets hold the ids of drivers currently inside each cell.
type Store struct {
	Rdb       *redis.Client
	Precision uint
}

func NewStore(rdb *redis.Client, precision uint) *Store {
	if precision == 0 {
		precision = 5
	}
	return &Store{Rdb: rdb, Precision: precision}
}

func driverKey(id int64) string       { return fmt.Sprintf("driver:location:%d", id) }
func cellKey(hash string) string      { return fmt.Sprintf("drivers:%s", hash) }
func CellFor(lat, lng float64, p uint) string { return geohash.EncodeWithPrecision(lat, lng, p) }

// Upsert stores a location report. Reports older than what is already
// stored are dropped, so out-of-order feed deliveries cannot move a
// driver backwards.
func (s *Store) Upsert(ctx context.Context, loc models.DriverLocation) error {
	prev, err := s.Get(ctx, loc.DriverID)
	if err != nil {
		return err
	}
	if prev != nil && prev.ReportedAt.After(loc.ReportedAt) {
		return nil
	}

	loc.Geohash = CellFor(loc.Latitude, loc.Longitude, s.Precision)
	doc, err := json.Marshal(loc)
	if err != nil {
		return err
	}

	pipe := s.Rdb.TxPipeline()
	pipe.Set(ctx, driverKey(loc.DriverID), doc, 0)
	if prev != nil && prev.Geohash != "" && prev.Geohash != loc.Geohash {
		pipe.SRem(ctx, cellKey(prev.Geohash), loc.DriverID)
	}
	if loc.Status == models.DriverOnline {
		pipe.SAdd(ctx, cellKey(loc.Geohash), loc.DriverID)
	} else {
		pipe.SRem(ctx, cellKey(loc.Geohash), loc.DriverID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the last report for a driver, or nil when none exists.
func (s *Store) Get(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	raw, err := s.Rdb.Get(ctx, driverKey(driverID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var loc models.DriverLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// Candidates loads every online driver registered in the given cells.
func (s *Store) Candidates(ctx context.Context, cells []string) ([]models.DriverLocation, error) {
	seen := make(map[int64]bool)
	var out []models.DriverLocation
	for _, cell := range cells {
		ids, err := s.Rdb.SMembers(ctx, cellKey(cell)).Result()
		if err != nil {
			return nil, err
		}
		for _, idStr := range ids {
			var id int64
			if _, err := fmt.Sscan(idStr, &id); err != nil {
				continue
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			loc, err := s.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if loc != nil {
				out = append(out, *loc)
			}
		}
	}
	return out, nil
}

// Source is what dispatch needs from a location backend. The Redis
// store implements it; tests use an in-memory fake.
type Source interface {
	Get(ctx context.Context, driverID int64) (*models.DriverLocation, error)
	Candidates(ctx context.Context, cells []string) ([]models.DriverLocation, error)
}

// Fresh reports whether loc is recent enough to dispatch on.
func Fresh(loc *models.DriverLocation, now time.Time, freshness time.Duration) bool {
	return loc.Age(now) <= freshness
}
