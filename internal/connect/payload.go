package connect

import (
	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

// Look-ahead/look-behind window the device keeps synchronized around the
// current queue position.
const queueWindowSize = 10

// ServerEndpoints supplies the server descriptors and auth delegation the
// load payload carries. The tidal catalog client satisfies it.
type ServerEndpoints interface {
	APIBaseURL() string
	QueueBaseURL() string
	AuthInfo() tidal.AuthInfo
	AlbumCovers(cover string) tidal.ImageSet
}

// LoadPayload is the single large message that starts playback of a queue
// on a device.
type LoadPayload struct {
	Autoplay          bool       `json:"autoplay"`
	Position          int        `json:"position"`
	QueueServerInfo   ServerInfo `json:"queueServerInfo"`
	ContentServerInfo ServerInfo `json:"contentServerInfo"`
	QueueInfo         QueueInfo  `json:"queueInfo"`
	CurrentMediaInfo  MediaInfo  `json:"currentMediaInfo"`
}

// ServerInfo describes one server a device must reach, with delegated auth.
type ServerInfo struct {
	ServerURL        string              `json:"serverUrl"`
	AuthInfo         tidal.AuthInfo      `json:"authInfo"`
	HTTPHeaderFields []tidal.HeaderField `json:"httpHeaderFields"`
	QueryParameters  map[string]string   `json:"queryParameters"`
}

// QueueInfo describes the queue the device should follow.
type QueueInfo struct {
	QueueID       string `json:"queueId"`
	RepeatMode    bool   `json:"repeatMode"`
	Shuffled      bool   `json:"shuffled"`
	MaxBeforeSize int    `json:"maxBeforeSize"`
	MaxAfterSize  int    `json:"maxAfterSize"`
}

// MediaInfo identifies the starting item and carries its inline metadata.
// Devices need the metadata up front; they render it before the content
// server answers.
type MediaInfo struct {
	ItemID    string        `json:"itemId"`
	MediaID   int           `json:"mediaId"`
	MediaType int           `json:"mediaType"`
	Metadata  MediaMetadata `json:"metadata"`
}

// MediaMetadata is the display metadata for one track.
type MediaMetadata struct {
	Title      string         `json:"title"`
	Artists    []string       `json:"artists"`
	AlbumTitle string         `json:"albumTitle"`
	Duration   int            `json:"duration"` // milliseconds
	Images     tidal.ImageSet `json:"images"`
}

// BuildLoadPayload assembles the load message for a queue and its resolved
// tracks. Pure: no network or state side effects. The track list must be
// non-empty; LoadQueue enforces it. The start position comes from the
// queue's stored position property, clamped to the track list.
func BuildLoadPayload(endpoints ServerEndpoints, queue *tidal.Queue, tracks *tidal.TrackList) LoadPayload {
	position := queue.Properties.Position
	if position < 0 || position >= len(tracks.Items) {
		position = 0
	}

	first := tracks.Items[0].Item
	current := tracks.Items[position].Item

	contentParams := map[string]string{}
	if len(first.AudioModes) > 0 {
		contentParams["audiomode"] = first.AudioModes[0]
	}
	if first.AudioQuality != "" {
		contentParams["audioquality"] = first.AudioQuality
	}

	return LoadPayload{
		Autoplay: true,
		Position: position,
		QueueServerInfo: ServerInfo{
			ServerURL:        endpoints.QueueBaseURL() + "/queues",
			AuthInfo:         endpoints.AuthInfo(),
			HTTPHeaderFields: []tidal.HeaderField{},
			QueryParameters:  map[string]string{},
		},
		ContentServerInfo: ServerInfo{
			ServerURL:        endpoints.APIBaseURL(),
			AuthInfo:         endpoints.AuthInfo(),
			HTTPHeaderFields: []tidal.HeaderField{},
			QueryParameters:  contentParams,
		},
		QueueInfo: QueueInfo{
			QueueID:       queue.ID,
			RepeatMode:    queue.RepeatMode != "" && queue.RepeatMode != "off",
			Shuffled:      queue.Shuffled,
			MaxBeforeSize: queueWindowSize,
			MaxAfterSize:  queueWindowSize,
		},
		CurrentMediaInfo: MediaInfo{
			ItemID:    queue.Items[position].ID,
			MediaID:   queue.Items[position].MediaID,
			MediaType: 0,
			Metadata:  buildMetadata(endpoints, current),
		},
	}
}

// buildMetadata converts track metadata into the device display block.
func buildMetadata(endpoints ServerEndpoints, track tidal.Track) MediaMetadata {
	artists := make([]string, len(track.Artists))
	for i, a := range track.Artists {
		artists[i] = a.Name
	}

	return MediaMetadata{
		Title:      track.Title,
		Artists:    artists,
		AlbumTitle: track.Album.Title,
		Duration:   track.Duration * 1000,
		Images:     endpoints.AlbumCovers(track.Album.Cover),
	}
}
