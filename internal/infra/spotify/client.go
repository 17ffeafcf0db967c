// Package spotify provides the metadata provider client for the Spotify Web API.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

const (
	maxSearchLimit   = 50
	maxPageSize      = 100
	playlistMetaOnly = "id,name,tracks.total"
)

// Credentials supplies and renews the bearer credential used for every call.
type Credentials interface {
	oauth2.TokenSource
	GetValidToken(ctx context.Context) (string, error)
	Invalidate(accessToken string)
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	creds      Credentials
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	Market  string
	BaseURL string        // overrides the API base URL, must end with "/"
	Timeout time.Duration // per-request timeout
}

// New creates a new Spotify client that authenticates through creds.
func New(creds Credentials, cfg Config) (*Client, error) {
	if creds == nil {
		return nil, errors.New("spotify credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Every request carries the manager's current credential
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: creds,
			Base:   &rejectedCredentialTransport{base: http.DefaultTransport, creds: creds},
		},
		Timeout:   timeout,
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(httpClient, opts...),
		creds:      creds,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// SearchTracks searches tracks by free text and returns up to limit candidates.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int, market string) ([]track.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	limit = clampLimit(limit, 10, maxSearchLimit)

	var result *spotify.SearchResult
	err := c.call(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.marketOr(market)),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search tracks: query=%q", query)
	}

	if result.Tracks == nil {
		return []track.Candidate{}, nil
	}

	candidates := make([]track.Candidate, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		t := &result.Tracks.Tracks[i]
		if t.ID == "" {
			continue
		}
		candidates = append(candidates, convertTrack(t))
	}
	return candidates, nil
}

// GetPlaylistTracks validates the playlist and returns up to limit of its tracks.
// An unknown playlist is reported as track.ErrPlaylistNotFound rather than an empty list.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistRef string, limit int, market string) ([]track.Candidate, error) {
	playlistID := extractPlaylistID(playlistRef)
	if playlistID == "" {
		return nil, errors.Mark(errors.New("invalid playlist ID"), track.ErrPlaylistNotFound)
	}
	limit = clampLimit(limit, maxPageSize, maxPageSize)

	if _, err := c.getPlaylist(ctx, playlistID); err != nil {
		return nil, err
	}

	page, err := c.getPlaylistPage(ctx, playlistID, limit, 0, market)
	if err != nil {
		return nil, err
	}
	return convertItems(page.Items), nil
}

// GetPlaylistDetails returns playlist metadata, or nil if the playlist cannot be found.
func (c *Client) GetPlaylistDetails(ctx context.Context, playlistRef string) (*playlist.Details, error) {
	playlistID := extractPlaylistID(playlistRef)
	if playlistID == "" {
		return nil, nil
	}

	p, err := c.getPlaylist(ctx, playlistID)
	if err != nil {
		if errors.Is(err, track.ErrPlaylistNotFound) {
			zlog.Debug().Msgf("playlist not found: id=%s", playlistID)
			return nil, nil
		}
		return nil, err
	}

	return &playlist.Details{
		ID:          string(p.ID),
		Name:        p.Name,
		TotalTracks: int(p.Tracks.Total),
	}, nil
}

// GetAllPlaylistTracks retrieves every track of a playlist.
func (c *Client) GetAllPlaylistTracks(ctx context.Context, playlistRef string) ([]track.Candidate, error) {
	playlistID := extractPlaylistID(playlistRef)
	if playlistID == "" {
		return nil, errors.Mark(errors.New("invalid playlist ID"), track.ErrPlaylistNotFound)
	}

	var tracks []track.Candidate
	offset := 0
	for {
		page, err := c.getPlaylistPage(ctx, playlistID, maxPageSize, offset, "")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, convertItems(page.Items)...)

		if len(page.Items) < maxPageSize {
			break
		}
		offset += maxPageSize
	}

	return tracks, nil
}

// getPlaylist fetches playlist metadata only.
func (c *Client) getPlaylist(ctx context.Context, playlistID string) (*spotify.FullPlaylist, error) {
	var result *spotify.FullPlaylist
	err := c.do(ctx, func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields(playlistMetaOnly))
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		if isPlaylistMissing(err) {
			return nil, errors.Mark(errors.Wrapf(err, "playlist %s", playlistID), track.ErrPlaylistNotFound)
		}
		return nil, markProvider(errors.Wrap(err, "failed to get playlist"))
	}
	return result, nil
}

// getPlaylistPage fetches one page of playlist items.
func (c *Client) getPlaylistPage(ctx context.Context, playlistID string, limit, offset int, market string) (*spotify.PlaylistItemPage, error) {
	var page *spotify.PlaylistItemPage
	err := c.do(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.marketOr(market)),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		if isPlaylistMissing(err) {
			return nil, errors.Mark(errors.Wrapf(err, "playlist %s", playlistID), track.ErrPlaylistNotFound)
		}
		return nil, markProvider(errors.Wrap(err, "failed to get playlist items"))
	}
	return page, nil
}

func (c *Client) marketOr(market string) string {
	if market != "" {
		return market
	}
	return c.market
}

// convertItems converts playlist items to candidates, skipping episodes.
func convertItems(items []spotify.PlaylistItem) []track.Candidate {
	candidates := make([]track.Candidate, 0, len(items))
	for _, item := range items {
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			candidates = append(candidates, convertTrack(item.Track.Track))
		}
	}
	return candidates
}

// convertTrack converts a Spotify FullTrack to a metadata candidate.
func convertTrack(t *spotify.FullTrack) track.Candidate {
	artist := "Unknown Artist"
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	return track.Candidate{
		ID:         string(t.ID),
		Title:      t.Name,
		Artist:     artist,
		AlbumArt:   largestImage(t.Album.Images),
		Popularity: int(t.Popularity),
	}
}

// largestImage returns the URL of the widest image.
func largestImage(images []spotify.Image) string {
	var best string
	bestWidth := -1
	for _, img := range images {
		if int(img.Width) > bestWidth {
			bestWidth = int(img.Width)
			best = img.URL
		}
	}
	return best
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:playlist:PLAYLIST_ID
	if strings.HasPrefix(input, "spotify:playlist:") {
		return strings.TrimPrefix(input, "spotify:playlist:")
	}

	// Handle URL format: https://open.spotify.com/playlist/PLAYLIST_ID or https://open.spotify.com/intl-XX/playlist/PLAYLIST_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/playlist/") {
		parts := strings.Split(input, "/playlist/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			return strings.TrimRight(id, "/")
		}
	}

	return input
}
