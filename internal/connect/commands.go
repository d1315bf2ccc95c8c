package connect

import (
	"github.com/rs/zerolog/log"

	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

// LoadQueue starts playback of a queue on the device. The status mirror is
// updated before the load command leaves the session, so status reads during
// the in-flight call already reflect the new selection. A queue-refresh
// follow-up tells the device to pull the item window.
func (s *Session) LoadQueue(queue *tidal.Queue, tracks *tidal.TrackList) error {
	if len(tracks.Items) == 0 {
		return ErrEmptyQueue
	}

	s.cancelResetTimer()

	position := queue.Properties.Position
	if position < 0 || position >= len(tracks.Items) {
		position = 0
	}

	items := make([]tidal.TrackItem, len(tracks.Items))
	copy(items, tracks.Items)
	s.status.SetQueue(queue.Clone(), items, position)

	payload := BuildLoadPayload(s.endpoints, queue, tracks)
	if err := s.sendCommand("loadCloudQueue", payload); err != nil {
		return err
	}

	log.Info().
		Str("device", s.device.Name).
		Str("queueId", queue.ID).
		Int("tracks", len(tracks.Items)).
		Int("position", position).
		Msg("Queue loaded")

	return s.sendCommand("refreshQueue", map[string]any{"queueId": queue.ID})
}

// Goto jumps to a track position in the loaded queue. The device needs the
// target's metadata inline, not just the index. The mirror is updated before
// the command is sent; an out-of-range position mutates nothing.
func (s *Session) Goto(position int) error {
	track, ok := s.status.TrackAt(position)
	if !ok {
		return ErrIndexOutOfRange
	}
	item, _ := s.status.ItemAt(position)

	s.cancelResetTimer()
	s.status.SetPosition(position)

	return s.sendCommand("selectQueueItem", map[string]any{
		"itemId":   item.ID,
		"mediaId":  track.Item.ID,
		"metadata": buildMetadata(s.endpoints, track.Item),
		"policy": map[string]any{
			"canNext":     true,
			"canPrevious": true,
		},
	})
}

// Stop halts playback and resets the status mirror to idle.
func (s *Session) Stop() error {
	err := s.sendCommand("stop", nil)
	s.cancelResetTimer()
	s.status.Reset()
	return err
}

// Play resumes playback.
func (s *Session) Play() error {
	return s.sendCommand("play", nil)
}

// Pause pauses playback.
func (s *Session) Pause() error {
	return s.sendCommand("pause", nil)
}

// Next skips to the next track.
func (s *Session) Next() error {
	return s.sendCommand("next", nil)
}

// Previous returns to the previous track.
func (s *Session) Previous() error {
	return s.sendCommand("previous", nil)
}

// TimeSeek seeks within the current track, progress in milliseconds.
func (s *Session) TimeSeek(progress int) error {
	return s.sendCommand("seek", map[string]any{"time": progress})
}

// ReplaceQueue re-installs the mirror after a server-side queue mutation,
// keeping queue items and tracks index-aligned. The current position is
// clamped to the new bounds.
func (s *Session) ReplaceQueue(queue *tidal.Queue, tracks []tidal.TrackItem) {
	position := s.status.Position()
	if position >= len(tracks) {
		position = 0
	}
	s.status.SetQueue(queue.Clone(), tracks, position)
}
