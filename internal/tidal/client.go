// Package tidal provides clients for the Tidal catalog API and the cloud
// queue service, plus the queue synchronization logic on top of them.
package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultAuthBaseURL is the Tidal OAuth token endpoint base.
	DefaultAuthBaseURL = "https://auth.tidal.com/v1/oauth2"

	// DefaultAPIBaseURL is the Tidal catalog API base.
	DefaultAPIBaseURL = "https://api.tidal.com/v1"

	// DefaultQueueBaseURL is the cloud queue service base.
	DefaultQueueBaseURL = "https://connectqueue.tidal.com/v1"

	// DefaultCountryCode is sent when the config does not set one.
	DefaultCountryCode = "US"

	// DefaultTimeout for catalog and queue HTTP requests.
	DefaultTimeout = 30 * time.Second

	// itemPageLimit is the page size used on album/playlist item requests.
	itemPageLimit = 100
)

// Client talks to the Tidal catalog API. Tokens are supplied pre-obtained;
// the client never refreshes them itself.
type Client struct {
	apiBaseURL   string
	queueBaseURL string
	authBaseURL  string
	countryCode  string
	accessToken  string
	refreshToken string
	httpClient   *http.Client
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithAPIBaseURL sets a custom catalog base URL (useful for testing).
func WithAPIBaseURL(u string) Option {
	return func(c *Client) {
		c.apiBaseURL = u
	}
}

// WithQueueBaseURL sets a custom queue service base URL (useful for testing).
func WithQueueBaseURL(u string) Option {
	return func(c *Client) {
		c.queueBaseURL = u
	}
}

// WithAuthBaseURL sets a custom token endpoint base.
func WithAuthBaseURL(u string) Option {
	return func(c *Client) {
		c.authBaseURL = u
	}
}

// WithCountryCode sets the country code sent on every request.
func WithCountryCode(cc string) Option {
	return func(c *Client) {
		c.countryCode = cc
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a catalog client using the given pre-obtained tokens.
func NewClient(accessToken, refreshToken string, opts ...Option) *Client {
	c := &Client{
		apiBaseURL:   DefaultAPIBaseURL,
		queueBaseURL: DefaultQueueBaseURL,
		authBaseURL:  DefaultAuthBaseURL,
		countryCode:  DefaultCountryCode,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIBaseURL returns the catalog base URL, for the load payload's content
// server descriptor.
func (c *Client) APIBaseURL() string {
	return c.apiBaseURL
}

// QueueBaseURL returns the queue service base URL.
func (c *Client) QueueBaseURL() string {
	return c.queueBaseURL
}

// AuthInfo returns the delegated-auth block devices use to fetch their own
// token. Scope and grant type follow the connect handoff protocol.
func (c *Client) AuthInfo() AuthInfo {
	return AuthInfo{
		OAuthServerInfo: OAuthServerInfo{
			ServerURL: c.authBaseURL + "/token",
			AuthInfo: OAuthCredentials{
				HeaderAuth: "Bearer " + c.accessToken,
				OAuthParameters: OAuthParameters{
					AccessToken:  c.accessToken,
					RefreshToken: c.refreshToken,
				},
			},
			HTTPHeaderFields: []HeaderField{},
			FormParameters: map[string]string{
				"scope":      "r_usr",
				"grant_type": "switch_client",
			},
		},
	}
}

// AlbumCovers returns the cover image URL set for a cover resource id.
func (c *Client) AlbumCovers(cover string) ImageSet {
	if cover == "" {
		return ImageSet{}
	}
	path := strings.ReplaceAll(cover, "-", "/")
	coverURL := func(size int) string {
		return fmt.Sprintf("https://resources.tidal.com/images/%s/%dx%d.jpg", path, size, size)
	}
	return ImageSet{
		Small:  coverURL(160),
		Medium: coverURL(320),
		Large:  coverURL(640),
		XL:     coverURL(1280),
	}
}

// FetchAlbum fetches album metadata.
func (c *Client) FetchAlbum(ctx context.Context, albumID string) (*Album, error) {
	var album Album
	u := fmt.Sprintf("%s/albums/%s?countryCode=%s", c.apiBaseURL, url.PathEscape(albumID), c.countryCode)
	if err := c.getJSON(ctx, u, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// FetchAlbumItems fetches the track list of an album.
func (c *Client) FetchAlbumItems(ctx context.Context, albumID string) (*TrackList, error) {
	u := fmt.Sprintf("%s/albums/%s/items?limit=%d&countryCode=%s",
		c.apiBaseURL, url.PathEscape(albumID), itemPageLimit, c.countryCode)
	var list TrackList
	if err := c.getJSON(ctx, u, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FetchPlaylist fetches playlist metadata.
func (c *Client) FetchPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	var playlist Playlist
	u := fmt.Sprintf("%s/playlists/%s?countryCode=%s", c.apiBaseURL, url.PathEscape(playlistID), c.countryCode)
	if err := c.getJSON(ctx, u, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// FetchPlaylistItems fetches the track list of a playlist.
func (c *Client) FetchPlaylistItems(ctx context.Context, playlistID string) (*TrackList, error) {
	u := fmt.Sprintf("%s/playlists/%s/items?limit=%d&countryCode=%s",
		c.apiBaseURL, url.PathEscape(playlistID), itemPageLimit, c.countryCode)
	var list TrackList
	if err := c.getJSON(ctx, u, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FetchTrack fetches metadata for a single track.
func (c *Client) FetchTrack(ctx context.Context, trackID int) (*Track, error) {
	var track Track
	u := fmt.Sprintf("%s/tracks/%d?countryCode=%s", c.apiBaseURL, trackID, c.countryCode)
	if err := c.getJSON(ctx, u, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// FetchTracks fetches metadata for several tracks in one call. The endpoint
// enforces a hard page-size ceiling; callers that may exceed it should go
// through QueueService.FetchContent which falls back to per-track lookups.
func (c *Client) FetchTracks(ctx context.Context, trackIDs []int) ([]Track, error) {
	ids := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = strconv.Itoa(id)
	}

	u := fmt.Sprintf("%s/tracks?ids=%s&countryCode=%s",
		c.apiBaseURL, strings.Join(ids, ","), c.countryCode)

	var page PagedTracks
	if err := c.getJSON(ctx, u, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Search queries the catalog. kinds is a comma separated list of
// ARTISTS,ALBUMS,TRACKS,PLAYLISTS; empty searches everything.
func (c *Client) Search(ctx context.Context, kinds, query string, limit int) (*SearchResults, error) {
	if limit <= 0 {
		limit = 25
	}
	if kinds == "" {
		kinds = "ARTISTS,ALBUMS,TRACKS,PLAYLISTS"
	}

	u := fmt.Sprintf("%s/search?query=%s&types=%s&limit=%d&countryCode=%s",
		c.apiBaseURL, url.QueryEscape(query), url.QueryEscape(kinds), limit, c.countryCode)

	var results SearchResults
	if err := c.getJSON(ctx, u, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// getJSON performs an authenticated GET and decodes the JSON response body.
func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Success
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("url", u).
			Str("body", string(body)).
			Msg("Catalog request rejected")
		return fmt.Errorf("%w: status %d", ErrRemoteRejected, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
