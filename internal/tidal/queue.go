package tidal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBatchLimit is the largest queue for which resolved content is
	// fetched in one bulk call. The bulk track endpoint enforces a hard
	// page-size ceiling; above it we resolve tracks one by one.
	DefaultBatchLimit = 50

	// queueItemsPageLimit bounds the page size on queue item fetches.
	queueItemsPageLimit = 50
)

// TrackResolver resolves a single media id to its track metadata. The
// catalog Client satisfies it; a caching layer can wrap it.
type TrackResolver interface {
	FetchTrack(ctx context.Context, trackID int) (*Track, error)
}

// QueueService creates and mutates server-side play queues and resolves
// their contents back into playable tracks.
type QueueService struct {
	client     *Client
	resolver   TrackResolver
	batchLimit int
}

// QueueOption is a functional option for configuring the queue service.
type QueueOption func(*QueueService)

// WithResolver sets the track resolver used by the per-item content
// fallback. Defaults to the catalog client itself.
func WithResolver(r TrackResolver) QueueOption {
	return func(s *QueueService) {
		s.resolver = r
	}
}

// WithBatchLimit overrides the bulk content fetch threshold.
func WithBatchLimit(n int) QueueOption {
	return func(s *QueueService) {
		s.batchLimit = n
	}
}

// NewQueueService creates a queue service on top of the catalog client.
func NewQueueService(client *Client, opts ...QueueOption) *QueueService {
	s := &QueueService{
		client:     client,
		resolver:   client,
		batchLimit: DefaultBatchLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// createQueueRequest is the queue creation payload.
type createQueueRequest struct {
	Properties QueueProperties `json:"properties"`
	RepeatMode string          `json:"repeat_mode"`
	Shuffled   bool            `json:"shuffled"`
	Items      []QueueItem     `json:"items"`
}

// queueError is the error payload shape returned by the queue service.
type queueError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Create submits a full replacement queue built from tracks, starting at
// startPosition. Repeat and shuffle are off. The returned queue carries the
// initial version token.
func (s *QueueService) Create(ctx context.Context, tracks []TrackItem, startPosition int, sourceType string) (*Queue, error) {
	if sourceType == "" {
		sourceType = "album"
	}

	payload := createQueueRequest{
		Properties: QueueProperties{Position: startPosition},
		RepeatMode: "off",
		Shuffled:   false,
		Items:      make([]QueueItem, len(tracks)),
	}
	for i, t := range tracks {
		payload.Items[i] = QueueItem{
			Type:    t.Type,
			MediaID: t.Item.ID,
			Properties: QueueItemProperties{
				Active:        false,
				OriginalOrder: 0,
				SourceID:      t.Item.ID,
				SourceType:    sourceType,
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal queue: %w", err)
	}

	u := fmt.Sprintf("%s/queues?countryCode=%s", s.client.queueBaseURL, s.client.countryCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.client.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkQueueStatus(resp); err != nil {
		return nil, err
	}

	var queue Queue
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		return nil, fmt.Errorf("parse queue: %w", err)
	}
	if tok := resp.Header.Get("ETag"); tok != "" {
		queue.ETag = tok
	}
	if queue.Total == 0 {
		queue.Total = len(queue.Items)
	}

	log.Debug().
		Str("queueId", queue.ID).
		Int("items", len(queue.Items)).
		Int("position", startPosition).
		Msg("Queue created")

	return &queue, nil
}

// Fetch retrieves queue metadata and its item list. The version token comes
// from the metadata response's ETag header, not the body.
func (s *QueueService) Fetch(ctx context.Context, queueID string) (*Queue, error) {
	u := fmt.Sprintf("%s/queues/%s?countryCode=%s",
		s.client.queueBaseURL, url.PathEscape(queueID), s.client.countryCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.client.accessToken)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkQueueStatus(resp); err != nil {
		return nil, err
	}

	var queue Queue
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		return nil, fmt.Errorf("parse queue: %w", err)
	}
	queue.ETag = resp.Header.Get("ETag")

	if len(queue.Items) == 0 {
		items, err := s.fetchItems(ctx, queueID)
		if err != nil {
			return nil, err
		}
		queue.Items = items
	}
	if queue.Total == 0 {
		queue.Total = len(queue.Items)
	}

	return &queue, nil
}

// fetchItems pages through the queue item list.
func (s *QueueService) fetchItems(ctx context.Context, queueID string) ([]QueueItem, error) {
	var items []QueueItem
	offset := 0

	for {
		u := fmt.Sprintf("%s/queues/%s/items?offset=%d&limit=%d&countryCode=%s",
			s.client.queueBaseURL, url.PathEscape(queueID), offset, queueItemsPageLimit, s.client.countryCode)

		var page struct {
			Items []QueueItem `json:"items"`
			Total int         `json:"total"`
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.client.accessToken)

		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		err = func() error {
			defer resp.Body.Close()
			if err := checkQueueStatus(resp); err != nil {
				return err
			}
			return json.NewDecoder(resp.Body).Decode(&page)
		}()
		if err != nil {
			return nil, err
		}

		items = append(items, page.Items...)
		if len(page.Items) < queueItemsPageLimit || (page.Total > 0 && len(items) >= page.Total) {
			return items, nil
		}
		offset += len(page.Items)
	}
}

// FetchContent resolves the queue items into track metadata, in queue order.
// Queues within the batch limit are resolved with one bulk call; larger
// queues, or a failed bulk call, fall back to one lookup per item. The
// fallback is slow but has no size ceiling. A failed lookup aborts the
// resolution; no partial result is returned.
func (s *QueueService) FetchContent(ctx context.Context, queue *Queue) (*TrackList, error) {
	total := queue.Total
	if total == 0 {
		total = len(queue.Items)
	}

	if total <= s.batchLimit {
		tracks, err := s.client.FetchTracks(ctx, queue.MediaIDs())
		if err == nil {
			return alignTracks(queue, tracks)
		}
		log.Warn().Err(err).Str("queueId", queue.ID).Msg("Bulk content fetch failed, resolving per item")
	}

	items := make([]TrackItem, 0, len(queue.Items))
	for _, item := range queue.Items {
		track, err := s.resolver.FetchTrack(ctx, item.MediaID)
		if err != nil {
			return nil, fmt.Errorf("resolve media %d: %w", item.MediaID, err)
		}
		items = append(items, TrackItem{Type: "track", Item: *track})
	}

	return &TrackList{Items: items, TotalNumberOfItems: len(items)}, nil
}

// alignTracks reorders a bulk response into queue order.
func alignTracks(queue *Queue, tracks []Track) (*TrackList, error) {
	byID := make(map[int]Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}

	items := make([]TrackItem, 0, len(queue.Items))
	for _, item := range queue.Items {
		track, ok := byID[item.MediaID]
		if !ok {
			return nil, fmt.Errorf("%w: media %d missing from bulk response", ErrRemoteRejected, item.MediaID)
		}
		items = append(items, TrackItem{Type: "track", Item: track})
	}

	return &TrackList{Items: items, TotalNumberOfItems: len(items)}, nil
}

// DeleteItem removes an item from the queue. The queue's current version
// token is sent as a precondition; on success the refreshed token is stored
// back on the queue and the local item list is updated. On failure the queue
// object is left untouched.
func (s *QueueService) DeleteItem(ctx context.Context, queue *Queue, itemID string) error {
	u := fmt.Sprintf("%s/queues/%s/items/%s?countryCode=%s",
		s.client.queueBaseURL, url.PathEscape(queue.ID), url.PathEscape(itemID), s.client.countryCode)

	tok, err := s.mutate(ctx, http.MethodDelete, u, nil, queue.ETag)
	if err != nil {
		return err
	}

	queue.ETag = tok
	for i, item := range queue.Items {
		if item.ID == itemID {
			queue.Items = append(queue.Items[:i], queue.Items[i+1:]...)
			break
		}
	}
	queue.Total = len(queue.Items)
	return nil
}

// MoveItem moves an item directly after another one. An empty afterID moves
// it to the front. Token handling matches DeleteItem.
func (s *QueueService) MoveItem(ctx context.Context, queue *Queue, itemID, afterID string) error {
	u := fmt.Sprintf("%s/queues/%s/items/%s/move?countryCode=%s",
		s.client.queueBaseURL, url.PathEscape(queue.ID), url.PathEscape(itemID), s.client.countryCode)

	body, err := json.Marshal(map[string]string{"after": afterID})
	if err != nil {
		return fmt.Errorf("marshal move: %w", err)
	}

	tok, err := s.mutate(ctx, http.MethodPost, u, body, queue.ETag)
	if err != nil {
		return err
	}

	queue.ETag = tok
	moveQueueItem(queue, itemID, afterID)
	return nil
}

// mutate performs a conditional queue mutation and returns the refreshed
// version token.
func (s *QueueService) mutate(ctx context.Context, method, u string, body []byte, etag string) (string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.client.accessToken)
	req.Header.Set("If-Match", etag)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkQueueStatus(resp); err != nil {
		return "", err
	}

	tok := resp.Header.Get("ETag")
	if tok == "" {
		tok = etag
	}
	return tok, nil
}

// moveQueueItem applies a successful move to the local item list.
func moveQueueItem(queue *Queue, itemID, afterID string) {
	from := -1
	for i, item := range queue.Items {
		if item.ID == itemID {
			from = i
			break
		}
	}
	if from < 0 {
		return
	}

	moved := queue.Items[from]
	items := append(queue.Items[:from], queue.Items[from+1:]...)

	to := 0
	if afterID != "" {
		for i, item := range items {
			if item.ID == afterID {
				to = i + 1
				break
			}
		}
	}

	items = append(items, QueueItem{})
	copy(items[to+1:], items[to:])
	items[to] = moved
	queue.Items = items
}

// checkQueueStatus maps queue service responses to errors.
func checkQueueStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return ErrStaleQueue
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var qerr queueError
		if json.Unmarshal(body, &qerr) == nil && qerr.Error != "" {
			return fmt.Errorf("%w: %s", ErrRemoteRejected, qerr.Error)
		}
		return fmt.Errorf("%w: status %d", ErrRemoteRejected, resp.StatusCode)
	}
}
