// Package httpapi exposes the streamer operations over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/nbonamy/tidal-streamer/internal/connect"
	"github.com/nbonamy/tidal-streamer/internal/streamer"
	"github.com/nbonamy/tidal-streamer/internal/tidal"
	"github.com/nbonamy/tidal-streamer/internal/version"
)

// Server wires the control surface routes.
type Server struct {
	service *streamer.Service
	api     *tidal.Client
}

// NewServer creates the HTTP control surface.
func NewServer(service *streamer.Service, api *tidal.Client) *Server {
	return &Server{
		service: service,
		api:     api,
	}
}

// Router builds the chi router for the control surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/devices", s.handleDevices)
		r.Get("/status", s.handleStatus)

		r.Post("/play", s.simpleCommand(s.service.Play))
		r.Post("/pause", s.simpleCommand(s.service.Pause))
		r.Post("/stop", s.simpleCommand(s.service.Stop))
		r.Post("/next", s.simpleCommand(s.service.Next))
		r.Post("/previous", s.simpleCommand(s.service.Previous))
		r.Post("/trackseek/{position}", s.handleTrackSeek)
		r.Post("/timeseek/{progress}", s.handleTimeSeek)

		r.Get("/stream/album/{id}", s.handleStreamAlbum)
		r.Get("/stream/playlist/{id}", s.handleStreamPlaylist)
		r.Post("/stream/tracks", s.handleStreamTracks)

		r.Delete("/queue/items/{id}", s.handleDeleteQueueItem)
		r.Post("/queue/items/{id}/move", s.handleMoveQueueItem)

		r.Get("/info/album/{id}", s.handleAlbumInfo)
		r.Get("/info/track/{id}", s.handleTrackInfo)
		r.Get("/search", s.handleSearch)
	})

	r.Get("/health", s.handleHealth)

	return r
}

// envelope is the uniform response wrapper.
type envelope struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// jsonOK writes a success envelope.
func jsonOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope{Status: "ok", Result: result}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// jsonError writes an error envelope with a status derived from the error.
func jsonError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, connect.ErrDeviceNotFound), errors.Is(err, tidal.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, connect.ErrIndexOutOfRange), errors.Is(err, connect.ErrEmptyQueue):
		code = http.StatusBadRequest
	case errors.Is(err, tidal.ErrStaleQueue):
		code = http.StatusConflict
	case errors.Is(err, tidal.ErrRemoteRejected), errors.Is(err, connect.ErrConnectFailed):
		code = http.StatusBadGateway
	case errors.Is(err, connect.ErrSessionClosed):
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if encErr := json.NewEncoder(w).Encode(envelope{Status: "error", Error: err.Error()}); encErr != nil {
		log.Error().Err(encErr).Msg("Failed to encode error response")
	}
}

// deviceID extracts the opaque device selector, empty for "the" device.
func deviceID(r *http.Request) string {
	return r.URL.Query().Get("device")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, version.GetInfo())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]int{"devices": len(s.service.Devices())})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, s.service.Devices())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(deviceID(r))
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, status)
}

// simpleCommand adapts the parameterless playback commands.
func (s *Server) simpleCommand(fn func(deviceID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(deviceID(r)); err != nil {
			jsonError(w, err)
			return
		}
		jsonOK(w, nil)
	}
}

func (s *Server) handleTrackSeek(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		jsonError(w, connect.ErrIndexOutOfRange)
		return
	}
	if err := s.service.TrackSeek(deviceID(r), position); err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, nil)
}

func (s *Server) handleTimeSeek(w http.ResponseWriter, r *http.Request) {
	progress, err := strconv.Atoi(chi.URLParam(r, "progress"))
	if err != nil || progress < 0 {
		jsonError(w, connect.ErrIndexOutOfRange)
		return
	}
	if err := s.service.TimeSeek(deviceID(r), progress); err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, nil)
}

func (s *Server) handleStreamAlbum(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.StreamAlbum(r.Context(), chi.URLParam(r, "id"), deviceID(r))
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, result)
}

func (s *Server) handleStreamPlaylist(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.StreamPlaylist(r.Context(), chi.URLParam(r, "id"), deviceID(r))
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, result)
}

// streamTracksRequest is the explicit track-list body.
type streamTracksRequest struct {
	Tracks   []int `json:"tracks"`
	Position int   `json:"position"`
}

func (s *Server) handleStreamTracks(w http.ResponseWriter, r *http.Request) {
	var req streamTracksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, err)
		return
	}

	result, err := s.service.StreamTracks(r.Context(), req.Tracks, req.Position, deviceID(r))
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, result)
}

func (s *Server) handleDeleteQueueItem(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteQueueItem(r.Context(), deviceID(r), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, nil)
}

// moveQueueItemRequest names the item the moved one lands after.
type moveQueueItemRequest struct {
	After string `json:"after"`
}

func (s *Server) handleMoveQueueItem(w http.ResponseWriter, r *http.Request) {
	var req moveQueueItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, err)
		return
	}

	err := s.service.MoveQueueItem(r.Context(), deviceID(r), chi.URLParam(r, "id"), req.After)
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, nil)
}

func (s *Server) handleAlbumInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	album, err := s.api.FetchAlbum(r.Context(), id)
	if err != nil {
		jsonError(w, err)
		return
	}

	tracks, err := s.api.FetchAlbumItems(r.Context(), id)
	if err != nil {
		jsonError(w, err)
		return
	}

	jsonOK(w, map[string]any{
		"album":  album,
		"tracks": tracks,
	})
}

func (s *Server) handleTrackInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, tidal.ErrNotFound)
		return
	}

	track, err := s.api.FetchTrack(r.Context(), id)
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, track)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	kinds := r.URL.Query().Get("type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := s.api.Search(r.Context(), kinds, query, limit)
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonOK(w, results)
}
