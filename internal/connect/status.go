package connect

import (
	"sync"

	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

// PlayState is the device-reported playback state.
type PlayState string

// Playback states reported by connect devices.
const (
	StateStopped PlayState = "STOPPED"
	StatePlaying PlayState = "PLAYING"
	StatePaused  PlayState = "PAUSED"
	StateIdle    PlayState = "IDLE"
)

// Volume is the device volume level plus mute flag.
type Volume struct {
	Level int  `json:"level"`
	Muted bool `json:"muted"`
}

// Status is the session's locally held best-known view of the device's
// playback state. It is mutated only by the owning session's dispatch path
// and by playback commands issued through the session; everyone else reads
// copies via Snapshot. Tracks[i] and Queue.Items[i] always describe the same
// playback slot.
type Status struct {
	mu sync.RWMutex

	state    PlayState
	queue    *tidal.Queue
	tracks   []tidal.TrackItem
	position int
	progress int // milliseconds into the current track
	volume   Volume
}

// StatusSnapshot is an immutable copy of a session status.
type StatusSnapshot struct {
	State    PlayState         `json:"state"`
	Queue    *tidal.Queue      `json:"queue,omitempty"`
	Tracks   []tidal.TrackItem `json:"tracks"`
	Position int               `json:"position"`
	Progress int               `json:"progress"`
	Volume   Volume            `json:"volume"`
}

// NewStatus creates an idle status mirror.
func NewStatus() *Status {
	return &Status{
		state: StateStopped,
	}
}

// Snapshot returns a copy of the current status. The queue and track list
// are cloned so the caller cannot observe later mutations.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracks := make([]tidal.TrackItem, len(s.tracks))
	copy(tracks, s.tracks)

	return StatusSnapshot{
		State:    s.state,
		Queue:    s.queue.Clone(),
		Tracks:   tracks,
		Position: s.position,
		Progress: s.progress,
		Volume:   s.volume,
	}
}

// Reset returns the mirror to its empty idle state.
func (s *Status) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateStopped
	s.queue = nil
	s.tracks = nil
	s.position = 0
	s.progress = 0
}

// SetQueue installs a new queue and its aligned track list, moving the
// position to the given slot.
func (s *Status) SetQueue(queue *tidal.Queue, tracks []tidal.TrackItem, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
	s.tracks = tracks
	s.position = position
	s.progress = 0
}

// QueueID returns the tracked queue id, or empty when none is tracked.
func (s *Status) QueueID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queue == nil {
		return ""
	}
	return s.queue.ID
}

// TrackCount returns the tracked track list length.
func (s *Status) TrackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// TrackAt returns the track at position, if tracked.
func (s *Status) TrackAt(position int) (tidal.TrackItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 0 || position >= len(s.tracks) {
		return tidal.TrackItem{}, false
	}
	return s.tracks[position], true
}

// ItemAt returns the queue item at position, if tracked.
func (s *Status) ItemAt(position int) (tidal.QueueItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queue == nil || position < 0 || position >= len(s.queue.Items) {
		return tidal.QueueItem{}, false
	}
	return s.queue.Items[position], true
}

// SetPosition moves the current position and rewinds progress.
func (s *Status) SetPosition(position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.progress = 0
}

// Position returns the current position index.
func (s *Status) Position() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// SetPlayerStatus overwrites playback state and progress.
func (s *Status) SetPlayerStatus(state PlayState, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.progress = progress
}

// SetVolume overwrites the volume field.
func (s *Status) SetVolume(v Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// MediaChanged rewinds progress and, when the media id matches a tracked
// track, moves the position to it.
func (s *Status) MediaChanged(mediaID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = 0
	for i, t := range s.tracks {
		if t.Item.ID == mediaID {
			s.position = i
			return
		}
	}
}
