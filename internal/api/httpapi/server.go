// Package httpapi exposes track resolution, search and playlist validation over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/earshot/internal/app/game"
	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

// Resolver resolves a selection into a playable track.
type Resolver interface {
	Resolve(ctx context.Context, sel track.SelectionContext) (*track.Track, error)
}

// Suggester returns autocomplete suggestions for a search term.
type Suggester interface {
	Suggest(ctx context.Context, query string) ([]track.Candidate, error)
}

// PlaylistValidator looks up playlist details. A nil result means not found.
type PlaylistValidator interface {
	GetPlaylistDetails(ctx context.Context, playlistRef string) (*playlist.Details, error)
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// codePlaylistNotFound tags the 500 sent when a selected playlist does not exist.
const codePlaylistNotFound = "playlist_not_found"

// playlistResponse is the body of GET /api/playlist-validate.
type playlistResponse struct {
	Success     bool   `json:"success"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	TotalTracks int    `json:"totalTracks"`
}

// Server serves the game API.
type Server struct {
	resolver  Resolver
	suggester Suggester
	playlists PlaylistValidator
	messages  game.Messages
	mux       *http.ServeMux
	handler   http.Handler
}

// NewServer creates a new API server.
func NewServer(resolver Resolver, suggester Suggester, playlists PlaylistValidator, messages game.Messages) (*Server, error) {
	if resolver == nil || suggester == nil || playlists == nil {
		return nil, errors.New("resolver, suggester and playlist validator are required")
	}
	if err := defaults.Set(&messages); err != nil {
		return nil, errors.Wrap(err, "failed to set message defaults")
	}

	s := &Server{
		resolver:  resolver,
		suggester: suggester,
		playlists: playlists,
		messages:  messages,
		mux:       http.NewServeMux(),
	}
	s.routes()
	s.handler = withRequestLog(withRecover(s.mux))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/song-random", s.handleRandomSong)
	s.mux.HandleFunc("GET /api/song-daily", s.handleDailySong)
	s.mux.HandleFunc("GET /api/songs-search", s.handleSearch)
	s.mux.HandleFunc("GET /api/playlist-validate", s.handleValidatePlaylist)
	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "API endpoint not found", nil)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRandomSong(w http.ResponseWriter, r *http.Request) {
	var req randomSongRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	sel, err := req.selection()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing or invalid selection parameters", err)
		return
	}
	s.resolve(w, r, sel)
}

func (s *Server) handleDailySong(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, track.SelectionContext{Mode: track.ModeDaily})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, sel track.SelectionContext) {
	ctx := r.Context()
	t, err := s.resolver.Resolve(ctx, sel)
	switch {
	case errors.Is(err, track.ErrPlaylistNotFound):
		zlog.Ctx(ctx).Warn().Err(err).Msgf("failed to resolve track: mode=%s", sel.Mode)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Message: s.messages.InvalidPlaylist,
			Error:   err.Error(),
			Code:    codePlaylistNotFound,
		})
	case err != nil:
		zlog.Ctx(ctx).Error().Err(err).Msgf("failed to resolve track: mode=%s", sel.Mode)
		writeError(w, http.StatusInternalServerError, "Error fetching random song", err)
	case t == nil:
		writeError(w, http.StatusNotFound, s.messages.NotFound(sel), nil)
	default:
		zlog.Ctx(ctx).Info().Msgf("resolved track: mode=%s id=%s", sel.Mode, t.ID)
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "Search term is required", err)
		return
	}
	results, err := s.suggester.Suggest(r.Context(), req.Term)
	if err != nil {
		zlog.Ctx(r.Context()).Error().Err(err).Msg("failed to search songs")
		writeError(w, http.StatusInternalServerError, "Error searching songs", err)
		return
	}
	if results == nil {
		results = []track.Candidate{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleValidatePlaylist(w http.ResponseWriter, r *http.Request) {
	failed := false

	var req validatePlaylistRequest
	if err := decodeQuery(r.URL.Query(), &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Success: &failed, Message: "Playlist ID is required"})
		return
	}

	details, err := s.playlists.GetPlaylistDetails(r.Context(), req.ID)
	if err != nil {
		zlog.Ctx(r.Context()).Error().Err(err).Msgf("failed to validate playlist: %s", req.ID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Success: &failed,
			Message: "Internal server error validating playlist",
			Error:   err.Error(),
		})
		return
	}
	if details == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Success: &failed, Message: s.messages.InvalidPlaylist})
		return
	}
	writeJSON(w, http.StatusOK, playlistResponse{
		Success:     true,
		ID:          details.ID,
		Name:        details.Name,
		TotalTracks: details.TotalTracks,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := errorResponse{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}
