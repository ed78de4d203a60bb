package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// SpaceAOIConfig holds per-space AOI tuning overrides: not every space
// wants the server-wide default radius (an open-world map and a 1v1 duel
// arena have very different visibility needs).
type SpaceAOIConfig struct {
	SpaceID       int32
	AoiRadius     float32
	AoiHysteresis float32
	GhostDistance float32
}

// MapConfigRepo loads per-space AOI tuning from Postgres, refreshed
// periodically rather than queried per-lookup (spec's config is read once
// per tick-relevant decision, not per packet). A circuit breaker guards the
// refresh query: a flaky config database should degrade to stale-but-served
// values, never to aoi radius zero for the whole fleet.
type MapConfigRepo struct {
	db *DB
	cb *gobreaker.CircuitBreaker

	cache map[int32]SpaceAOIConfig
}

func NewMapConfigRepo(db *DB) *MapConfigRepo {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mapconfig-refresh",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &MapConfigRepo{db: db, cb: cb, cache: make(map[int32]SpaceAOIConfig)}
}

// Refresh reloads the whole table through the circuit breaker. On an open
// breaker or a query failure, the previous cache is left untouched and the
// error is returned for the caller to log — callers should treat this as
// non-fatal and keep running on the last good snapshot.
func (r *MapConfigRepo) Refresh(ctx context.Context) error {
	result, err := r.cb.Execute(func() (any, error) {
		rows, err := r.db.Pool.Query(ctx,
			`SELECT space_id, aoi_radius, aoi_hysteresis, ghost_distance FROM space_aoi_config`)
		if err != nil {
			return nil, fmt.Errorf("query space_aoi_config: %w", err)
		}
		defer rows.Close()

		next := make(map[int32]SpaceAOIConfig)
		for rows.Next() {
			var c SpaceAOIConfig
			if err := rows.Scan(&c.SpaceID, &c.AoiRadius, &c.AoiHysteresis, &c.GhostDistance); err != nil {
				return nil, fmt.Errorf("scan space_aoi_config row: %w", err)
			}
			next[c.SpaceID] = c
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate space_aoi_config: %w", err)
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	r.cache = result.(map[int32]SpaceAOIConfig)
	return nil
}

// Lookup returns a space's tuning and whether an override exists; callers
// fall back to server-wide defaults on a miss.
func (r *MapConfigRepo) Lookup(spaceID int32) (SpaceAOIConfig, bool) {
	c, ok := r.cache[spaceID]
	return c, ok
}
