package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/earshot/internal/app/game"
	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

func newClientAndServer(t *testing.T, res *fakeResolver, sug *fakeSuggester, pl *fakePlaylists) *Client {
	t.Helper()
	srv := httptest.NewServer(newTestServer(t, res, sug, pl))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

// Client must be usable as the game's track source.
var _ game.TrackSource = (*Client)(nil)

func TestClient_Resolve(t *testing.T) {
	res := &fakeResolver{track: humble()}
	c := newClientAndServer(t, res, nil, nil)

	sel := track.SelectionContext{
		Mode:       track.ModeArtist,
		Parameter:  "Kendrick Lamar",
		ExcludeIDs: map[string]bool{"b": true, "a": true},
	}
	got, err := c.Resolve(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, humble(), got)

	sent := res.last()
	assert.Equal(t, track.ModeArtist, sent.Mode)
	assert.Equal(t, "Kendrick Lamar", sent.Parameter)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, sent.ExcludeIDs)
}

func TestClient_ResolveModes(t *testing.T) {
	tests := []struct {
		name string
		sel  track.SelectionContext
	}{
		{name: "playlist", sel: track.SelectionContext{Mode: track.ModePlaylist, Parameter: "pl1"}},
		{name: "daily", sel: track.SelectionContext{Mode: track.ModeDaily}},
		{name: "chart", sel: track.SelectionContext{Mode: track.ModeChart, Parameter: "14"}},
		{name: "chart without genre", sel: track.SelectionContext{Mode: track.ModeChart}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &fakeResolver{track: humble()}
			c := newClientAndServer(t, res, nil, nil)

			_, err := c.Resolve(context.Background(), tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.sel.Mode, res.last().Mode)
			assert.Equal(t, tt.sel.Parameter, res.last().Parameter)
		})
	}
}

func TestClient_ResolveNotFoundIsNil(t *testing.T) {
	c := newClientAndServer(t, &fakeResolver{}, nil, nil)

	got, err := c.Resolve(context.Background(), track.SelectionContext{Mode: track.ModePlaylist, Parameter: "pl1"})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_ResolveUnknownPlaylist(t *testing.T) {
	res := &fakeResolver{err: errors.Mark(errors.New("no such playlist"), track.ErrPlaylistNotFound)}
	c := newClientAndServer(t, res, nil, nil)

	_, err := c.Resolve(context.Background(), track.SelectionContext{Mode: track.ModePlaylist, Parameter: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, track.ErrPlaylistNotFound))
	assert.False(t, errors.Is(err, track.ErrProvider))
	assert.Equal(t, "Playlist not found. Check the playlist link or ID.", err.Error())
}

func TestClient_ResolveNotFoundWithDetailIsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "No suitable tracks found", errors.New("upstream detail"))
	}))
	t.Cleanup(server.Close)

	got, err := NewClient(server.URL, time.Second).Resolve(context.Background(),
		track.SelectionContext{Mode: track.ModePlaylist, Parameter: "pl1"})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_ResolveServerError(t *testing.T) {
	res := &fakeResolver{err: errors.Mark(errors.New("denied"), track.ErrAuth)}
	c := newClientAndServer(t, res, nil, nil)

	_, err := c.Resolve(context.Background(), track.SelectionContext{Mode: track.ModeDaily})
	require.Error(t, err)
	assert.True(t, errors.Is(err, track.ErrProvider))
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestClient_Search(t *testing.T) {
	sug := &fakeSuggester{results: []track.Candidate{{ID: "t1", Title: "HUMBLE.", Artist: "Kendrick Lamar"}}}
	c := newClientAndServer(t, &fakeResolver{}, sug, nil)

	got, err := c.Search(context.Background(), "hum ble")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, []string{"hum ble"}, sug.queries)

	_, err = c.Search(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_ValidatePlaylist(t *testing.T) {
	pl := &fakePlaylists{details: map[string]*playlist.Details{
		"pl1": {ID: "pl1", Name: "Road Trip", TotalTracks: 42},
	}}
	c := newClientAndServer(t, &fakeResolver{}, nil, pl)

	got, err := c.ValidatePlaylist(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, &playlist.Details{ID: "pl1", Name: "Road Trip", TotalTracks: 42}, got)

	got, err = c.ValidatePlaylist(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.Resolve(context.Background(), track.SelectionContext{Mode: track.ModeDaily})
	require.Error(t, err)
	assert.True(t, errors.Is(err, track.ErrProvider))
}

func TestParseExcludeIDs(t *testing.T) {
	assert.Equal(t, map[string]bool{}, parseExcludeIDs(""))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, parseExcludeIDs(" a ,b,"))
	assert.Equal(t, "a,b", formatExcludeIDs(map[string]bool{"b": true, "a": true, "c": false}))
}
