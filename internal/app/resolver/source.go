package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

// errExhausted reports that a source has no drawable candidate left.
var errExhausted = errors.New("candidate pool exhausted")

// Source draws metadata candidates for one selection mode.
// A source lives for a single Resolve call and may cache what it fetched.
type Source interface {
	// Draw returns the candidate for the given attempt, skipping ids for which
	// skip reports true. A nil candidate means this attempt drew nothing.
	Draw(ctx context.Context, attempt int, skip func(id string) bool) (*track.Candidate, error)

	// Name returns the source name.
	Name() string
}

// newSource creates the source for a selection context.
func (e *Engine) newSource(sel track.SelectionContext) (Source, error) {
	param := strings.TrimSpace(sel.Parameter)

	switch sel.Mode {
	case track.ModePlaylist:
		if param == "" {
			return nil, errors.New("playlist id is required")
		}
		return &playlistSource{meta: e.meta, playlistID: param, pageSize: e.cfg.PlaylistPageSize, market: e.cfg.Market, pick: e.pick}, nil

	case track.ModeArtist:
		if param == "" {
			return nil, errors.New("artist name is required")
		}
		return &artistSource{meta: e.meta, artist: param, limit: e.cfg.ArtistSearchLimit, market: e.cfg.Market, pick: e.pick}, nil

	case track.ModeDaily:
		if param == "" {
			param = e.cfg.DailyPlaylistID
		}
		if param == "" {
			return nil, errors.New("daily playlist is not configured")
		}
		return &dailySource{meta: e.meta, playlistID: param, date: e.now().UTC().Format("2006-01-02")}, nil

	case track.ModeChart:
		if param == "" {
			param = e.cfg.ChartGenreID
		}
		return &chartSource{
			meta:     e.meta,
			preview:  e.preview,
			chartURL: e.preview.ChartURL(e.cfg.Country, param, e.cfg.ChartLimit),
			market:   e.cfg.Market,
			pick:     e.pick,
		}, nil

	default:
		return nil, errors.Newf("unsupported selection mode: %d", sel.Mode)
	}
}

// pickAvailable picks uniformly among the pool's tracks that are not skipped.
func pickAvailable(pool *playlist.Playlist, skip func(string) bool, pick func(int) int) *track.Candidate {
	available := pool.Available(skip)
	if len(available) == 0 {
		return nil
	}
	chosen := available[pick(len(available))]
	return &chosen
}
