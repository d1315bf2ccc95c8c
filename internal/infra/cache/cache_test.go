package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nbonamy/tidal-streamer/internal/infra/cache"
	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

func openTestDB(t *testing.T) *cache.DB {
	t.Helper()
	db := cache.NewDB(filepath.Join(t.TempDir(), "tracks.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrackRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if _, ok := db.GetTrack(42); ok {
		t.Error("empty cache should miss")
	}

	track := &tidal.Track{
		ID:       42,
		Title:    "Cached",
		Duration: 180,
		Artists:  []tidal.Artist{{Name: "Someone"}},
		Album:    tidal.AlbumRef{Title: "Somewhere", Cover: "aa-bb"},
	}
	if err := db.PutTrack(track); err != nil {
		t.Fatalf("PutTrack: %v", err)
	}

	got, ok := db.GetTrack(42)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Title != "Cached" || got.Album.Cover != "aa-bb" {
		t.Errorf("unexpected cached track %+v", got)
	}
}

func TestPutTrackOverwrites(t *testing.T) {
	db := openTestDB(t)

	db.PutTrack(&tidal.Track{ID: 7, Title: "Old"})
	db.PutTrack(&tidal.Track{ID: 7, Title: "New"})

	got, ok := db.GetTrack(7)
	if !ok || got.Title != "New" {
		t.Errorf("expected refreshed entry, got %+v ok=%v", got, ok)
	}
}

func TestClosedCacheMisses(t *testing.T) {
	db := cache.NewDB(filepath.Join(t.TempDir(), "tracks.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	if _, ok := db.GetTrack(1); ok {
		t.Error("closed cache should miss")
	}
	if err := db.PutTrack(&tidal.Track{ID: 1}); err == nil {
		t.Error("put on closed cache should fail")
	}
}

// stubResolver counts upstream lookups.
type stubResolver struct {
	calls int
	err   error
}

func (r *stubResolver) FetchTrack(ctx context.Context, trackID int) (*tidal.Track, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &tidal.Track{ID: trackID, Title: "Fresh"}, nil
}

func TestResolverServesFromCache(t *testing.T) {
	db := openTestDB(t)
	upstream := &stubResolver{}
	resolver := cache.NewResolver(db, upstream)

	for i := 0; i < 3; i++ {
		track, err := resolver.FetchTrack(context.Background(), 42)
		if err != nil {
			t.Fatalf("FetchTrack: %v", err)
		}
		if track.ID != 42 {
			t.Errorf("unexpected track %+v", track)
		}
	}

	if upstream.calls != 1 {
		t.Errorf("expected 1 upstream lookup, got %d", upstream.calls)
	}
}

func TestResolverPropagatesErrors(t *testing.T) {
	db := openTestDB(t)
	upstream := &stubResolver{err: tidal.ErrNotFound}
	resolver := cache.NewResolver(db, upstream)

	if _, err := resolver.FetchTrack(context.Background(), 1); !errors.Is(err, tidal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Failures are not cached.
	if _, ok := db.GetTrack(1); ok {
		t.Error("failed lookup must not be cached")
	}
}
