// Package itunes provides a client for the iTunes Search API, the preview provider.
package itunes

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

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/earshot/internal/domain/track"
)

const (
	defaultSearchURL = "https://itunes.apple.com/search"
	defaultChartBase = "https://itunes.apple.com"
	maxSearchLimit   = 200
	userAgent        = "earshot/1.0"
)

// Client is an iTunes Search API client.
type Client struct {
	searchURL  string
	chartBase  string
	country    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config represents iTunes client configuration.
type Config struct {
	BaseURL           string        // search endpoint, defaults to the public API
	ChartBaseURL      string        // host of the RSS chart feeds
	Country           string        // default storefront
	RequestsPerMinute int           // 0 disables pacing
	Timeout           time.Duration // per-request timeout
}

// SearchParams are the query parameters of a search. Only Term is required.
type SearchParams struct {
	Term      string
	Entity    string
	Media     string
	Limit     int
	Country   string
	Attribute string
	GenreID   string
	Offset    int
}

type searchResponse struct {
	ResultCount int          `json:"resultCount"`
	Results     []resultItem `json:"results"`
}

type resultItem struct {
	WrapperType   string `json:"wrapperType"`
	Kind          string `json:"kind"`
	TrackID       int64  `json:"trackId"`
	TrackName     string `json:"trackName"`
	ArtistName    string `json:"artistName"`
	PreviewURL    string `json:"previewUrl"`
	ArtworkURL100 string `json:"artworkUrl100"`
	ReleaseDate   string `json:"releaseDate"`
}

// New creates a new iTunes client.
func New(cfg Config) *Client {
	searchURL := cfg.BaseURL
	if searchURL == "" {
		searchURL = defaultSearchURL
	}
	chartBase := cfg.ChartBaseURL
	if chartBase == "" {
		chartBase = defaultChartBase
	}
	country := cfg.Country
	if country == "" {
		country = "US"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &Client{
		searchURL:  searchURL,
		chartBase:  strings.TrimRight(chartBase, "/"),
		country:    country,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// SearchRaw runs a search and returns the provider's results unfiltered.
// Reference: https://performance-partners.apple.com/search-api
func (c *Client) SearchRaw(ctx context.Context, p SearchParams) ([]track.PreviewCandidate, error) {
	if strings.TrimSpace(p.Term) == "" {
		return nil, errors.New("search term is required")
	}

	params := url.Values{}
	params.Set("term", p.Term)
	params.Set("media", valueOr(p.Media, "music"))
	params.Set("entity", valueOr(p.Entity, "song"))
	params.Set("country", valueOr(p.Country, c.country))
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(min(p.Limit, maxSearchLimit)))
	}
	if p.Offset > 0 {
		params.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Attribute != "" {
		params.Set("attribute", p.Attribute)
	}
	if p.GenreID != "" {
		params.Set("genreId", p.GenreID)
	}

	body, err := c.get(ctx, c.searchURL+"?"+params.Encode())
	if err != nil {
		return nil, errors.Wrapf(err, "itunes search failed: term=%q", p.Term)
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse search response"), track.ErrProvider)
	}

	candidates := make([]track.PreviewCandidate, 0, len(response.Results))
	for _, item := range response.Results {
		candidates = append(candidates, track.PreviewCandidate{
			TrackID:     item.TrackID,
			Title:       item.TrackName,
			Artist:      item.ArtistName,
			PreviewURL:  item.PreviewURL,
			ArtworkURL:  item.ArtworkURL100,
			ReleaseDate: item.ReleaseDate,
			Kind:        item.Kind,
		})
	}

	zlog.Debug().Msgf("itunes search: term=%q, results=%d", p.Term, len(candidates))
	return candidates, nil
}

// ChartURL returns the top-songs feed URL for a storefront and genre.
// An empty genreID selects the all-genre chart.
func (c *Client) ChartURL(country, genreID string, limit int) string {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("%s/%s/rss/topsongs/limit=%d", c.chartBase, strings.ToLower(valueOr(country, c.country)), limit)
	if genreID != "" {
		path += "/genre=" + url.PathEscape(genreID)
	}
	return path + "/json"
}

// FetchChart downloads a chart feed and returns its entries.
// An unrecognized feed shape yields an empty list.
func (c *Client) FetchChart(ctx context.Context, chartURL string) ([]track.ChartEntry, error) {
	body, err := c.get(ctx, chartURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch chart")
	}

	feed, err := decodeChart(body)
	if err != nil {
		return nil, errors.Mark(err, track.ErrProvider)
	}
	if feed.kind == chartUnknown {
		zlog.Warn().Msgf("unrecognized chart feed shape: url=%s", chartURL)
	}
	return feed.entries, nil
}

// get performs a paced GET request and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "rate limiter wait aborted"), track.ErrProvider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to send request"), track.ErrProvider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response body"), track.ErrProvider)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Mark(errors.Newf("itunes returned %d: %s", resp.StatusCode, truncate(body, 200)), track.ErrProvider)
	}
	return body, nil
}

func valueOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
