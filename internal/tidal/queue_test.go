package tidal_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

// fakeQueueServer is an in-process cloud queue service holding one queue.
type fakeQueueServer struct {
	srv *httptest.Server

	queueID string
	etag    string
	items   []tidal.QueueItem

	lastIfMatch string
	stale       bool // reject mutations with 412
}

func newFakeQueueServer(t *testing.T) *fakeQueueServer {
	t.Helper()
	f := &fakeQueueServer{queueID: "q-1", etag: "v1"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /queues", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Properties tidal.QueueProperties `json:"properties"`
			RepeatMode string                `json:"repeat_mode"`
			Items      []tidal.QueueItem     `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.items = make([]tidal.QueueItem, len(req.Items))
		for i, item := range req.Items {
			item.ID = fmt.Sprintf("item-%d", i)
			f.items[i] = item
		}
		w.Header().Set("ETag", f.etag)
		json.NewEncoder(w).Encode(tidal.Queue{
			ID:         f.queueID,
			RepeatMode: req.RepeatMode,
			Items:      f.items,
			Total:      len(f.items),
			Properties: req.Properties,
		})
	})
	mux.HandleFunc("GET /queues/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != f.queueID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", f.etag)
		json.NewEncoder(w).Encode(tidal.Queue{ID: f.queueID, Total: len(f.items)})
	})
	mux.HandleFunc("GET /queues/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": f.items,
			"total": len(f.items),
		})
	})
	mux.HandleFunc("DELETE /queues/{id}/items/{item}", func(w http.ResponseWriter, r *http.Request) {
		f.lastIfMatch = r.Header.Get("If-Match")
		if f.stale {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		target := r.PathValue("item")
		for i, item := range f.items {
			if item.ID == target {
				f.items = append(f.items[:i], f.items[i+1:]...)
				break
			}
		}
		f.etag = f.etag + "'"
		w.Header().Set("ETag", f.etag)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /queues/{id}/items/{item}/move", func(w http.ResponseWriter, r *http.Request) {
		f.lastIfMatch = r.Header.Get("If-Match")
		if f.stale {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.etag = f.etag + "'"
		w.Header().Set("ETag", f.etag)
		w.WriteHeader(http.StatusOK)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// countingResolver wraps per-item resolution with a call counter.
type countingResolver struct {
	calls int32
	fail  bool
}

func (r *countingResolver) FetchTrack(ctx context.Context, trackID int) (*tidal.Track, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.fail {
		return nil, tidal.ErrNotFound
	}
	return &tidal.Track{ID: trackID, Title: fmt.Sprintf("Track %d", trackID)}, nil
}

func newQueueService(t *testing.T, f *fakeQueueServer, catalog http.Handler, opts ...tidal.QueueOption) *tidal.QueueService {
	t.Helper()
	var apiURL string
	if catalog != nil {
		srv := httptest.NewServer(catalog)
		t.Cleanup(srv.Close)
		apiURL = srv.URL
	} else {
		apiURL = "http://127.0.0.1:1"
	}
	client := tidal.NewClient("access-token", "refresh-token",
		tidal.WithAPIBaseURL(apiURL),
		tidal.WithQueueBaseURL(f.srv.URL))
	return tidal.NewQueueService(client, opts...)
}

func trackItems(ids ...int) []tidal.TrackItem {
	items := make([]tidal.TrackItem, len(ids))
	for i, id := range ids {
		items[i] = tidal.TrackItem{Type: "track", Item: tidal.Track{ID: id}}
	}
	return items
}

func TestCreateAndFetchQueue(t *testing.T) {
	f := newFakeQueueServer(t)
	service := newQueueService(t, f, nil)

	queue, err := service.Create(context.Background(), trackItems(10, 20, 30), 1, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if queue.ID != "q-1" || queue.ETag != "v1" {
		t.Errorf("unexpected queue identity %q / token %q", queue.ID, queue.ETag)
	}
	if queue.Properties.Position != 1 {
		t.Errorf("expected position 1, got %d", queue.Properties.Position)
	}
	if got := queue.MediaIDs(); len(got) != 3 || got[0] != 10 || got[2] != 30 {
		t.Errorf("unexpected media order %v", got)
	}

	// A fetch of the same queue yields the same membership and token.
	fetched, err := service.Fetch(context.Background(), queue.ID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched.ETag != queue.ETag {
		t.Errorf("fetch token %q differs from create token %q", fetched.ETag, queue.ETag)
	}
	if got := fetched.MediaIDs(); len(got) != 3 || got[1] != 20 {
		t.Errorf("unexpected fetched media order %v", got)
	}
	if fetched.Total != 3 {
		t.Errorf("expected total 3, got %d", fetched.Total)
	}
}

func TestFetchUnknownQueue(t *testing.T) {
	f := newFakeQueueServer(t)
	service := newQueueService(t, f, nil)

	_, err := service.Fetch(context.Background(), "no-such-queue")
	if !errors.Is(err, tidal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchContentBulk(t *testing.T) {
	f := newFakeQueueServer(t)
	resolver := &countingResolver{}

	catalog := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The bulk endpoint answers out of order; alignment is on us.
		w.Write([]byte(`{"items":[{"id":30,"title":"C"},{"id":10,"title":"A"},{"id":20,"title":"B"}]}`))
	})
	service := newQueueService(t, f, catalog, tidal.WithResolver(resolver))

	queue, err := service.Create(context.Background(), trackItems(10, 20, 30), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := service.FetchContent(context.Background(), queue)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}

	if atomic.LoadInt32(&resolver.calls) != 0 {
		t.Errorf("bulk path should not touch the resolver, saw %d calls", resolver.calls)
	}
	for i, want := range []string{"A", "B", "C"} {
		if list.Items[i].Item.Title != want {
			t.Errorf("item %d: expected %q, got %q", i, want, list.Items[i].Item.Title)
		}
	}
}

func TestFetchContentFallsBackAboveBatchLimit(t *testing.T) {
	f := newFakeQueueServer(t)
	resolver := &countingResolver{}

	bulkCalls := 0
	catalog := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bulkCalls++
		w.Write([]byte(`{"items":[]}`))
	})
	service := newQueueService(t, f, catalog,
		tidal.WithResolver(resolver), tidal.WithBatchLimit(2))

	queue, err := service.Create(context.Background(), trackItems(1, 2, 3, 4), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := service.FetchContent(context.Background(), queue)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}

	if bulkCalls != 0 {
		t.Errorf("above the batch limit the bulk endpoint must not be called, saw %d", bulkCalls)
	}
	if got := atomic.LoadInt32(&resolver.calls); got != 4 {
		t.Errorf("expected 4 per-item lookups, got %d", got)
	}
	if len(list.Items) != 4 || list.Items[3].Item.ID != 4 {
		t.Errorf("unexpected resolved list %+v", list.Items)
	}
}

func TestFetchContentBulkFailureFallsBack(t *testing.T) {
	f := newFakeQueueServer(t)
	resolver := &countingResolver{}

	catalog := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	service := newQueueService(t, f, catalog, tidal.WithResolver(resolver))

	queue, err := service.Create(context.Background(), trackItems(5, 6), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := service.FetchContent(context.Background(), queue)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if got := atomic.LoadInt32(&resolver.calls); got != 2 {
		t.Errorf("expected fallback lookups after bulk failure, got %d", got)
	}
	if len(list.Items) != 2 {
		t.Errorf("unexpected list %+v", list.Items)
	}
}

func TestFetchContentAbortsOnResolveError(t *testing.T) {
	f := newFakeQueueServer(t)
	resolver := &countingResolver{fail: true}
	service := newQueueService(t, f, nil,
		tidal.WithResolver(resolver), tidal.WithBatchLimit(0))

	queue, err := service.Create(context.Background(), trackItems(5, 6), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := service.FetchContent(context.Background(), queue); !errors.Is(err, tidal.ErrNotFound) {
		t.Errorf("expected resolver error to propagate, got %v", err)
	}
}

func TestDeleteItemRefreshesToken(t *testing.T) {
	f := newFakeQueueServer(t)
	service := newQueueService(t, f, nil)

	queue, err := service.Create(context.Background(), trackItems(10, 20, 30), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := service.DeleteItem(context.Background(), queue, "item-1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	if f.lastIfMatch != "v1" {
		t.Errorf("mutation sent token %q, want v1", f.lastIfMatch)
	}
	if queue.ETag != "v1'" {
		t.Errorf("refreshed token not stored, got %q", queue.ETag)
	}
	if got := queue.MediaIDs(); len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Errorf("local items not updated: %v", got)
	}
	if queue.Total != 2 {
		t.Errorf("total not updated, got %d", queue.Total)
	}
}

func TestStaleTokenRejected(t *testing.T) {
	f := newFakeQueueServer(t)
	service := newQueueService(t, f, nil)

	queue, err := service.Create(context.Background(), trackItems(10, 20), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.stale = true

	if err := service.DeleteItem(context.Background(), queue, "item-0"); !errors.Is(err, tidal.ErrStaleQueue) {
		t.Fatalf("expected ErrStaleQueue, got %v", err)
	}
	// The local queue must be untouched on failure.
	if queue.ETag != "v1" || len(queue.Items) != 2 {
		t.Errorf("failed mutation changed the queue: token %q, %d items", queue.ETag, len(queue.Items))
	}

	if err := service.MoveItem(context.Background(), queue, "item-0", "item-1"); !errors.Is(err, tidal.ErrStaleQueue) {
		t.Fatalf("expected ErrStaleQueue on move, got %v", err)
	}
	if queue.Items[0].ID != "item-0" {
		t.Error("failed move reordered the local queue")
	}
}

func TestMoveItemReorders(t *testing.T) {
	f := newFakeQueueServer(t)
	service := newQueueService(t, f, nil)

	queue, err := service.Create(context.Background(), trackItems(10, 20, 30), 0, "album")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Move the head directly after the tail.
	if err := service.MoveItem(context.Background(), queue, "item-0", "item-2"); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if got := queue.MediaIDs(); got[0] != 20 || got[1] != 30 || got[2] != 10 {
		t.Errorf("unexpected order after move: %v", got)
	}

	// An empty after id moves to the front.
	if err := service.MoveItem(context.Background(), queue, "item-0", ""); err != nil {
		t.Fatalf("MoveItem to front: %v", err)
	}
	if got := queue.MediaIDs(); got[0] != 10 {
		t.Errorf("expected media 10 at front, got %v", got)
	}
}

func TestQueueErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_queue","error_description":"bad items"}`))
	}))
	defer srv.Close()

	client := tidal.NewClient("t", "r", tidal.WithQueueBaseURL(srv.URL))
	service := tidal.NewQueueService(client)

	_, err := service.Create(context.Background(), trackItems(1), 0, "album")
	if !errors.Is(err, tidal.ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_queue") {
		t.Errorf("error should carry the remote reason, got %q", err)
	}
}
