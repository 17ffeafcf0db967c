package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/earshot/internal/app/game"
	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

type fakeResolver struct {
	mu    sync.Mutex
	track *track.Track
	err   error
	calls []track.SelectionContext
}

func (f *fakeResolver) Resolve(_ context.Context, sel track.SelectionContext) (*track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sel)
	return f.track, f.err
}

func (f *fakeResolver) last() track.SelectionContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeSuggester struct {
	results []track.Candidate
	err     error
	queries []string
}

func (f *fakeSuggester) Suggest(_ context.Context, query string) ([]track.Candidate, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakePlaylists struct {
	details map[string]*playlist.Details
	err     error
}

func (f *fakePlaylists) GetPlaylistDetails(_ context.Context, id string) (*playlist.Details, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.details[id], nil
}

func humble() *track.Track {
	return &track.Track{ID: "t1", Title: "HUMBLE.", Artist: "Kendrick Lamar", PreviewURL: "https://audio/humble"}
}

func newTestServer(t *testing.T, res *fakeResolver, sug *fakeSuggester, pl *fakePlaylists) *Server {
	t.Helper()
	if sug == nil {
		sug = &fakeSuggester{}
	}
	if pl == nil {
		pl = &fakePlaylists{}
	}
	s, err := NewServer(res, sug, pl, game.Messages{})
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, &fakeSuggester{}, &fakePlaylists{}, game.Messages{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, nil, nil)
	rec, _ := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRandomSong_Selection(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		mode      track.Mode
		parameter string
		exclude   map[string]bool
	}{
		{name: "playlist", query: "playlistId=pl1", mode: track.ModePlaylist, parameter: "pl1", exclude: map[string]bool{}},
		{name: "artist", query: "artistName=Drake", mode: track.ModeArtist, parameter: "Drake", exclude: map[string]bool{}},
		{name: "genre implies chart", query: "genreId=14", mode: track.ModeChart, parameter: "14", exclude: map[string]bool{}},
		{name: "playlist wins over artist", query: "playlistId=pl1&artistName=Drake", mode: track.ModePlaylist, parameter: "pl1", exclude: map[string]bool{}},
		{name: "explicit mode wins", query: "mode=artist&playlistId=pl1&artistName=Drake", mode: track.ModeArtist, parameter: "Drake", exclude: map[string]bool{}},
		{name: "daily mode", query: "mode=daily", mode: track.ModeDaily, exclude: map[string]bool{}},
		{
			name:      "exclude ids",
			query:     "playlistId=pl1&exclude_ids=" + url.QueryEscape("a, b,,c"),
			mode:      track.ModePlaylist,
			parameter: "pl1",
			exclude:   map[string]bool{"a": true, "b": true, "c": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &fakeResolver{track: humble()}
			s := newTestServer(t, res, nil, nil)

			rec, body := get(t, s, "/api/song-random?"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "t1", body["id"])
			assert.Equal(t, "https://audio/humble", body["previewUrl"])

			sel := res.last()
			assert.Equal(t, tt.mode, sel.Mode)
			assert.Equal(t, tt.parameter, sel.Parameter)
			assert.Equal(t, tt.exclude, sel.ExcludeIDs)
		})
	}
}

func TestRandomSong_BadRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "no selector", query: ""},
		{name: "unknown mode", query: "mode=radio&playlistId=pl1"},
		{name: "playlist mode without id", query: "mode=playlist&artistName=Drake"},
		{name: "artist mode without name", query: "mode=artist"},
		{name: "non numeric genre", query: "genreId=rock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &fakeResolver{track: humble()}
			s := newTestServer(t, res, nil, nil)

			rec, body := get(t, s, "/api/song-random?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["message"])
			assert.Empty(t, res.calls)
		})
	}
}

func TestRandomSong_NotFoundMessages(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, nil, nil)

	rec, body := get(t, s, "/api/song-random?artistName=Drake")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `No suitable tracks found for artist "Drake". Try a different artist.`, body["message"])
	assert.NotContains(t, body, "error")

	rec, body = get(t, s, "/api/song-random?playlistId=pl1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No suitable tracks found for this playlist. Try a different playlist.", body["message"])
}

func TestRandomSong_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		code    any
	}{
		{
			name:    "unknown playlist",
			err:     errors.Mark(errors.New("playlist nope"), track.ErrPlaylistNotFound),
			message: "Playlist not found. Check the playlist link or ID.",
			code:    "playlist_not_found",
		},
		{
			name:    "auth failure",
			err:     errors.Mark(errors.New("token rejected"), track.ErrAuth),
			message: "Error fetching random song",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeResolver{err: tt.err}, nil, nil)
			rec, body := get(t, s, "/api/song-random?playlistId=nope")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.message, body["message"])
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestDailySong(t *testing.T) {
	res := &fakeResolver{track: humble()}
	s := newTestServer(t, res, nil, nil)

	rec, body := get(t, s, "/api/song-daily")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HUMBLE.", body["title"])
	assert.Equal(t, track.ModeDaily, res.last().Mode)

	res.track = nil
	rec, body = get(t, s, "/api/song-daily")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Today's song is not available right now. Please try again later.", body["message"])
}

func TestSongsSearch(t *testing.T) {
	sug := &fakeSuggester{results: []track.Candidate{
		{ID: "t1", Title: "HUMBLE.", Artist: "Kendrick Lamar", AlbumArt: "https://img/1", Popularity: 80},
	}}
	s := newTestServer(t, &fakeResolver{}, sug, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/songs-search?term=humb", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"id":"t1","title":"HUMBLE.","artist":"Kendrick Lamar","albumArt":"https://img/1","popularity":80}]`,
		rec.Body.String())
	assert.Equal(t, []string{"humb"}, sug.queries)
}

func TestSongsSearch_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeSuggester{}, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/songs-search?term=x", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSongsSearch_Errors(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeSuggester{err: errors.New("boom")}, nil)

	rec, body := get(t, s, "/api/songs-search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Search term is required", body["message"])

	rec, body = get(t, s, "/api/songs-search?term=humble")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", body["error"])
}

func TestPlaylistValidate(t *testing.T) {
	pl := &fakePlaylists{details: map[string]*playlist.Details{
		"pl1": {ID: "pl1", Name: "Road Trip", TotalTracks: 42},
	}}
	s := newTestServer(t, &fakeResolver{}, nil, pl)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/playlist-validate?id=pl1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"id":"pl1","name":"Road Trip","totalTracks":42}`, rec.Body.String())

	rec, body := get(t, s, "/api/playlist-validate?id=missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Playlist not found. Check the playlist link or ID.", body["message"])

	rec, body = get(t, s, "/api/playlist-validate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Playlist ID is required", body["message"])
}

func TestPlaylistValidate_ProviderError(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, nil, &fakePlaylists{err: errors.New("upstream down")})

	rec, body := get(t, s, "/api/playlist-validate?id=pl1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "upstream down", body["error"])
}

func TestUnknownEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, nil, nil)
	rec, body := get(t, s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "API endpoint not found", body["message"])
}

type panicResolver struct{}

func (panicResolver) Resolve(context.Context, track.SelectionContext) (*track.Track, error) {
	panic("boom")
}

func TestRecoverFromPanic(t *testing.T) {
	s, err := NewServer(panicResolver{}, &fakeSuggester{}, &fakePlaylists{}, game.Messages{})
	require.NoError(t, err)

	rec, body := get(t, s, "/api/song-daily")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["message"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}
