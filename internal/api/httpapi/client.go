package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

// Client calls the game API. It implements game.TrackSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve fetches a track for the selection.
// A 404 is reported as nil, nil. A 500 tagged playlist_not_found is
// reported as track.ErrPlaylistNotFound.
func (c *Client) Resolve(ctx context.Context, sel track.SelectionContext) (*track.Track, error) {
	path := "/api/song-random"
	q := url.Values{}
	switch sel.Mode {
	case track.ModeDaily:
		path = "/api/song-daily"
	case track.ModePlaylist:
		q.Set("mode", "playlist")
		q.Set("playlistId", sel.Parameter)
	case track.ModeArtist:
		q.Set("mode", "artist")
		q.Set("artistName", sel.Parameter)
	case track.ModeChart:
		q.Set("mode", "chart")
		if sel.Parameter != "" {
			q.Set("genreId", sel.Parameter)
		}
	}
	if ids := formatExcludeIDs(sel.ExcludeIDs); ids != "" && sel.Mode != track.ModeDaily {
		q.Set("exclude_ids", ids)
	}

	var t track.Track
	status, apiErr, err := c.get(ctx, path, q, &t)
	if apiErr.Code == codePlaylistNotFound {
		return nil, errors.Mark(errors.New(apiErr.Message), track.ErrPlaylistNotFound)
	}
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &t, nil
}

// Search returns autocomplete suggestions for term.
func (c *Client) Search(ctx context.Context, term string) ([]track.Candidate, error) {
	var results []track.Candidate
	if _, _, err := c.get(ctx, "/api/songs-search", url.Values{"term": {term}}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ValidatePlaylist returns the playlist details, or nil if the playlist does not exist.
func (c *Client) ValidatePlaylist(ctx context.Context, id string) (*playlist.Details, error) {
	var resp playlistResponse
	status, _, err := c.get(ctx, "/api/playlist-validate", url.Values{"id": {id}}, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &playlist.Details{ID: resp.ID, Name: resp.Name, TotalTracks: resp.TotalTracks}, nil
}

// get performs a GET request. 200 bodies are decoded into out, 404 bodies
// into the returned errorResponse. Any other status is an error.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) (int, errorResponse, error) {
	var apiErr errorResponse

	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, apiErr, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apiErr, errors.Mark(errors.Wrapf(err, "request to %s failed", path), track.ErrProvider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, apiErr, errors.Mark(errors.Wrap(err, "failed to read response"), track.ErrProvider)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, apiErr, errors.Wrap(err, "failed to decode response")
		}
		return resp.StatusCode, apiErr, nil
	case http.StatusNotFound:
		_ = json.Unmarshal(body, &apiErr)
		return resp.StatusCode, apiErr, nil
	default:
		_ = json.Unmarshal(body, &apiErr)
		err := errors.Newf("%s returned HTTP %d: %s", path, resp.StatusCode, apiErr.Message)
		if resp.StatusCode >= http.StatusInternalServerError {
			err = errors.Mark(err, track.ErrProvider)
		}
		return resp.StatusCode, apiErr, err
	}
}
