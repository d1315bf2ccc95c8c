package tidal

// Artist is a catalog artist reference.
type Artist struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// AlbumRef is the embedded album reference carried by tracks.
type AlbumRef struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
}

// Album is the full catalog album object.
type Album struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Cover          string   `json:"cover"`
	Artists        []Artist `json:"artists"`
	NumberOfTracks int      `json:"numberOfTracks"`
	Duration       int      `json:"duration"`
	ReleaseDate    string   `json:"releaseDate"`
}

// Playlist is the catalog playlist object.
type Playlist struct {
	UUID           string `json:"uuid"`
	Title          string `json:"title"`
	NumberOfTracks int    `json:"numberOfTracks"`
	Duration       int    `json:"duration"`
	Image          string `json:"image"`
}

// Track is the resolved metadata for one playable item.
type Track struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Duration       int      `json:"duration"` // seconds
	TrackNumber    int      `json:"trackNumber,omitempty"`
	Artists        []Artist `json:"artists"`
	Album          AlbumRef `json:"album"`
	AudioModes     []string `json:"audioModes"`
	AudioQuality   string   `json:"audioQuality"`
	AllowStreaming bool     `json:"allowStreaming"`
}

// TrackItem wraps a track with its catalog item type, as returned by the
// album and playlist item endpoints.
type TrackItem struct {
	Type string `json:"type"`
	Item Track  `json:"item"`
}

// TrackList is a paginated list of track items.
type TrackList struct {
	Items              []TrackItem `json:"items"`
	Limit              int         `json:"limit,omitempty"`
	Offset             int         `json:"offset,omitempty"`
	TotalNumberOfItems int         `json:"totalNumberOfItems"`
}

// ImageSet is the set of cover image URLs sent to devices.
type ImageSet struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
	XL     string `json:"xl"`
}

// SearchResults groups paginated search hits by kind. Only the requested
// kinds are populated.
type SearchResults struct {
	Artists   PagedArtists   `json:"artists"`
	Albums    PagedAlbums    `json:"albums"`
	Tracks    PagedTracks    `json:"tracks"`
	Playlists PagedPlaylists `json:"playlists"`
}

// PagedArtists is a page of artist results.
type PagedArtists struct {
	Items              []Artist `json:"items"`
	TotalNumberOfItems int      `json:"totalNumberOfItems"`
}

// PagedAlbums is a page of album results.
type PagedAlbums struct {
	Items              []Album `json:"items"`
	TotalNumberOfItems int     `json:"totalNumberOfItems"`
}

// PagedTracks is a page of track results.
type PagedTracks struct {
	Items              []Track `json:"items"`
	TotalNumberOfItems int     `json:"totalNumberOfItems"`
}

// PagedPlaylists is a page of playlist results.
type PagedPlaylists struct {
	Items              []Playlist `json:"items"`
	TotalNumberOfItems int        `json:"totalNumberOfItems"`
}

// Queue is the server-side play queue. ETag is the opaque version token
// required on every mutation; the queue service refreshes it after each
// accepted change.
type Queue struct {
	ID         string          `json:"id"`
	ETag       string          `json:"etag,omitempty"`
	RepeatMode string          `json:"repeat_mode"`
	Shuffled   bool            `json:"shuffled"`
	Items      []QueueItem     `json:"items"`
	Total      int             `json:"total,omitempty"`
	Properties QueueProperties `json:"properties"`
}

// QueueItem is one slot in a server-side queue.
type QueueItem struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	MediaID    int                 `json:"media_id"`
	Properties QueueItemProperties `json:"properties"`
}

// QueueItemProperties carries source bookkeeping for a queue item.
type QueueItemProperties struct {
	Active        bool   `json:"active"`
	OriginalOrder int    `json:"original_order"`
	SourceID      int    `json:"sourceId"`
	SourceType    string `json:"sourceType"`
}

// QueueProperties holds queue-level playback properties.
type QueueProperties struct {
	Position int `json:"position"`
}

// MediaIDs returns the media ids of the queue items, in queue order.
func (q *Queue) MediaIDs() []int {
	ids := make([]int, len(q.Items))
	for i, item := range q.Items {
		ids[i] = item.MediaID
	}
	return ids
}

// Clone returns a deep copy of the queue.
func (q *Queue) Clone() *Queue {
	if q == nil {
		return nil
	}
	dup := *q
	dup.Items = make([]QueueItem, len(q.Items))
	copy(dup.Items, q.Items)
	return &dup
}

// AuthInfo is the delegated-auth block handed to devices so they can talk to
// the queue and content servers on the user's behalf.
type AuthInfo struct {
	OAuthServerInfo OAuthServerInfo `json:"oauthServerInfo"`
}

// OAuthServerInfo describes the token endpoint and credentials a device uses
// to obtain its own access token.
type OAuthServerInfo struct {
	ServerURL        string            `json:"serverUrl"`
	AuthInfo         OAuthCredentials  `json:"authInfo"`
	HTTPHeaderFields []HeaderField     `json:"httpHeaderFields"`
	FormParameters   map[string]string `json:"formParameters"`
}

// OAuthCredentials carries the bearer header and raw token pair.
type OAuthCredentials struct {
	HeaderAuth      string          `json:"headerAuth"`
	OAuthParameters OAuthParameters `json:"oauthParameters"`
}

// OAuthParameters is the raw token pair delegated to the device.
type OAuthParameters struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// HeaderField is a name/value HTTP header pair.
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
