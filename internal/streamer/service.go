// Package streamer orchestrates catalog lookups, queue creation and device
// sessions into the high-level playback operations the control surface
// exposes.
package streamer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nbonamy/tidal-streamer/internal/connect"
	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

// Service binds the device registry, the catalog client and the queue
// synchronizer.
type Service struct {
	registry *connect.Registry
	api      *tidal.Client
	queues   *tidal.QueueService
	resolver tidal.TrackResolver
}

// NewService creates the streamer service. resolver is used for explicit
// track-list streaming and may be cache-backed; nil falls back to the
// catalog client.
func NewService(registry *connect.Registry, api *tidal.Client, queues *tidal.QueueService, resolver tidal.TrackResolver) *Service {
	if resolver == nil {
		resolver = api
	}
	return &Service{
		registry: registry,
		api:      api,
		queues:   queues,
		resolver: resolver,
	}
}

// StreamResult summarizes a started stream.
type StreamResult struct {
	ID     string          `json:"id"`
	Title  string          `json:"title,omitempty"`
	Artist string          `json:"artist,omitempty"`
	Tracks int             `json:"tracks"`
	Device *connect.Device `json:"device"`
}

// StreamAlbum queues an album on the selected device and starts playback.
func (s *Service) StreamAlbum(ctx context.Context, albumID, deviceID string) (*StreamResult, error) {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("album", albumID).Str("device", session.Device().Name).Msg("Streaming album")

	tracks, err := s.api.FetchAlbumItems(ctx, albumID)
	if err != nil {
		return nil, fmt.Errorf("fetch album %s: %w", albumID, err)
	}
	if len(tracks.Items) == 0 {
		return nil, fmt.Errorf("album %s: %w", albumID, tidal.ErrNotFound)
	}

	if err := s.stream(ctx, session, tracks, 0, "album"); err != nil {
		return nil, err
	}

	first := tracks.Items[0].Item
	artist := ""
	if len(first.Artists) > 0 {
		artist = first.Artists[0].Name
	}

	return &StreamResult{
		ID:     albumID,
		Title:  first.Album.Title,
		Artist: artist,
		Tracks: tracks.TotalNumberOfItems,
		Device: session.Device(),
	}, nil
}

// StreamPlaylist queues a playlist on the selected device and starts
// playback.
func (s *Service) StreamPlaylist(ctx context.Context, playlistID, deviceID string) (*StreamResult, error) {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("playlist", playlistID).Str("device", session.Device().Name).Msg("Streaming playlist")

	tracks, err := s.api.FetchPlaylistItems(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}
	if len(tracks.Items) == 0 {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, tidal.ErrNotFound)
	}

	if err := s.stream(ctx, session, tracks, 0, "playlist"); err != nil {
		return nil, err
	}

	return &StreamResult{
		ID:     playlistID,
		Tracks: tracks.TotalNumberOfItems,
		Device: session.Device(),
	}, nil
}

// StreamTracks queues an explicit track list, starting at startPosition.
func (s *Service) StreamTracks(ctx context.Context, trackIDs []int, startPosition int, deviceID string) (*StreamResult, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("empty track list: %w", tidal.ErrNotFound)
	}
	if startPosition < 0 || startPosition >= len(trackIDs) {
		return nil, connect.ErrIndexOutOfRange
	}

	session, err := s.registry.Session(deviceID)
	if err != nil {
		return nil, err
	}

	items := make([]tidal.TrackItem, 0, len(trackIDs))
	for _, id := range trackIDs {
		track, err := s.resolver.FetchTrack(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch track %d: %w", id, err)
		}
		items = append(items, tidal.TrackItem{Type: "track", Item: *track})
	}

	tracks := &tidal.TrackList{Items: items, TotalNumberOfItems: len(items)}
	if err := s.stream(ctx, session, tracks, startPosition, "track"); err != nil {
		return nil, err
	}

	return &StreamResult{
		ID:     fmt.Sprintf("%d tracks", len(items)),
		Tracks: len(items),
		Device: session.Device(),
	}, nil
}

// stream creates the server-side queue and loads it on the device.
func (s *Service) stream(ctx context.Context, session *connect.Session, tracks *tidal.TrackList, startPosition int, sourceType string) error {
	queue, err := s.queues.Create(ctx, tracks.Items, startPosition, sourceType)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	if queue.Properties.Position == 0 {
		queue.Properties.Position = startPosition
	}

	return session.LoadQueue(queue, tracks)
}

// Status returns the status snapshot of the selected device.
func (s *Service) Status(deviceID string) (connect.StatusSnapshot, error) {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return connect.StatusSnapshot{}, err
	}
	return session.Status(), nil
}

// Devices lists known devices.
func (s *Service) Devices() []*connect.Device {
	return s.registry.List()
}

// Play resumes playback on the selected device.
func (s *Service) Play(deviceID string) error {
	return s.withSession(deviceID, (*connect.Session).Play)
}

// Pause pauses playback on the selected device.
func (s *Service) Pause(deviceID string) error {
	return s.withSession(deviceID, (*connect.Session).Pause)
}

// Stop stops playback on the selected device.
func (s *Service) Stop(deviceID string) error {
	return s.withSession(deviceID, (*connect.Session).Stop)
}

// Next skips forward on the selected device.
func (s *Service) Next(deviceID string) error {
	return s.withSession(deviceID, (*connect.Session).Next)
}

// Previous skips backward on the selected device.
func (s *Service) Previous(deviceID string) error {
	return s.withSession(deviceID, (*connect.Session).Previous)
}

// TrackSeek jumps to a track position in the loaded queue.
func (s *Service) TrackSeek(deviceID string, position int) error {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return err
	}
	return session.Goto(position)
}

// TimeSeek seeks within the current track, progress in milliseconds.
func (s *Service) TimeSeek(deviceID string, progress int) error {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return err
	}
	return session.TimeSeek(progress)
}

// DeleteQueueItem removes an item from the device's queue, keeping the
// session mirror aligned. The mirror is only touched after the remote
// mutation succeeds.
func (s *Service) DeleteQueueItem(ctx context.Context, deviceID, itemID string) error {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return err
	}

	snapshot := session.Status()
	if snapshot.Queue == nil {
		return tidal.ErrNotFound
	}

	queue := snapshot.Queue
	if err := s.queues.DeleteItem(ctx, queue, itemID); err != nil {
		return err
	}

	session.ReplaceQueue(queue, alignTracksToQueue(snapshot, queue))
	return nil
}

// MoveQueueItem moves an item directly after another one, keeping the
// session mirror aligned.
func (s *Service) MoveQueueItem(ctx context.Context, deviceID, itemID, afterID string) error {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return err
	}

	snapshot := session.Status()
	if snapshot.Queue == nil {
		return tidal.ErrNotFound
	}

	queue := snapshot.Queue
	if err := s.queues.MoveItem(ctx, queue, itemID, afterID); err != nil {
		return err
	}

	session.ReplaceQueue(queue, alignTracksToQueue(snapshot, queue))
	return nil
}

// withSession runs a simple session command against the selected device.
func (s *Service) withSession(deviceID string, fn func(*connect.Session) error) error {
	session, err := s.registry.Session(deviceID)
	if err != nil {
		return err
	}
	return fn(session)
}

// alignTracksToQueue reorders the snapshot's tracks to match the mutated
// queue's item order, preserving the tracks[i] / items[i] invariant.
func alignTracksToQueue(snapshot connect.StatusSnapshot, queue *tidal.Queue) []tidal.TrackItem {
	byMedia := make(map[int]tidal.TrackItem, len(snapshot.Tracks))
	for _, t := range snapshot.Tracks {
		byMedia[t.Item.ID] = t
	}

	tracks := make([]tidal.TrackItem, 0, len(queue.Items))
	for _, item := range queue.Items {
		if t, ok := byMedia[item.MediaID]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}
