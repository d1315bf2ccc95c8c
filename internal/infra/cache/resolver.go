package cache

import (
	"context"

	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

// Resolver is a caching tidal.TrackResolver: cache hits skip the catalog,
// misses are fetched and stored. Store failures never fail a lookup.
type Resolver struct {
	db   *DB
	next tidal.TrackResolver
}

// NewResolver wraps a resolver with the cache.
func NewResolver(db *DB, next tidal.TrackResolver) *Resolver {
	return &Resolver{db: db, next: next}
}

// FetchTrack resolves a track, serving from cache when fresh.
func (r *Resolver) FetchTrack(ctx context.Context, trackID int) (*tidal.Track, error) {
	if track, ok := r.db.GetTrack(trackID); ok {
		return track, nil
	}

	track, err := r.next.FetchTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}

	_ = r.db.PutTrack(track)
	return track, nil
}
