// Package resolver turns a selection context into a playable track by
// drawing metadata candidates and cross-referencing them with preview results.
package resolver

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/earshot/internal/domain/track"
	"github.com/osa030/earshot/internal/infra/itunes"
)

// MetadataClient defines the metadata provider operations needed by the engine.
type MetadataClient interface {
	SearchTracks(ctx context.Context, query string, limit int, market string) ([]track.Candidate, error)
	GetPlaylistTracks(ctx context.Context, playlistID string, limit int, market string) ([]track.Candidate, error)
	GetAllPlaylistTracks(ctx context.Context, playlistID string) ([]track.Candidate, error)
}

// PreviewClient defines the preview provider operations needed by the engine.
type PreviewClient interface {
	SearchRaw(ctx context.Context, p itunes.SearchParams) ([]track.PreviewCandidate, error)
	FetchChart(ctx context.Context, chartURL string) ([]track.ChartEntry, error)
	ChartURL(country, genreID string, limit int) string
}

// Config represents resolution engine configuration.
type Config struct {
	MaxAttempts       int           `default:"5" validate:"gte=1"`
	DailyMaxAttempts  int           `default:"10" validate:"gte=1"`
	PreviewLimit      int           `default:"10" validate:"gte=1,lte=200"`
	CallTimeout       time.Duration `default:"8s" validate:"gt=0"`
	PlaylistPageSize  int           `default:"100" validate:"gte=1,lte=100"`
	ArtistSearchLimit int           `default:"50" validate:"gte=1,lte=50"`
	ChartLimit        int           `default:"100" validate:"gte=1,lte=200"`
	MinReleaseYear    int           `default:"2006" validate:"gte=0"`
	Market            string        `default:"US"`
	Country           string        `default:"US"`
	DailyPlaylistID   string
	ChartGenreID      string
}

// Engine resolves selection contexts into tracks.
type Engine struct {
	meta    MetadataClient
	preview PreviewClient
	cfg     Config

	now  func() time.Time
	pick func(n int) int

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a new resolution engine.
func New(meta MetadataClient, preview PreviewClient, cfg Config) (*Engine, error) {
	if meta == nil || preview == nil {
		return nil, errors.New("metadata and preview clients are required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	e := &Engine{
		meta:    meta,
		preview: preview,
		cfg:     cfg,
		now:     time.Now,
		rng:     newRNG(),
	}
	e.pick = e.intn
	return e, nil
}

// Resolve draws candidates for sel until one has a matching preview or the
// attempt budget is spent. Exhaustion is reported as a nil track, not an error.
// Auth and unknown-playlist failures abort immediately.
func (e *Engine) Resolve(ctx context.Context, sel track.SelectionContext) (*track.Track, error) {
	src, err := e.newSource(sel)
	if err != nil {
		return nil, err
	}

	maxAttempts := e.cfg.MaxAttempts
	if sel.Mode == track.ModeDaily {
		maxAttempts = e.cfg.DailyMaxAttempts
	}

	logger := zlog.With().Str("source", src.Name()).Str("param", sel.Parameter).Logger()

	// Candidates that yielded no preview during this call
	knownBad := make(map[string]bool)
	skip := func(id string) bool {
		if knownBad[id] {
			return true
		}
		// The daily pick is the same for everyone, so exclusions do not apply
		return sel.Mode != track.ModeDaily && sel.IsExcluded(id)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := e.draw(ctx, src, attempt, skip)
		if err != nil {
			if errors.Is(err, errExhausted) {
				logger.Info().Msgf("candidate pool exhausted: attempt=%d", attempt+1)
				return nil, nil
			}
			if track.IsFatal(err) || ctx.Err() != nil {
				return nil, err
			}
			logger.Warn().Err(err).Msgf("candidate draw failed: attempt=%d/%d", attempt+1, maxAttempts)
			continue
		}
		if candidate == nil {
			logger.Debug().Msgf("no candidate drawn: attempt=%d/%d", attempt+1, maxAttempts)
			continue
		}

		previews, err := e.lookupPreview(ctx, *candidate)
		if err != nil {
			if track.IsFatal(err) || ctx.Err() != nil {
				return nil, err
			}
			logger.Warn().Err(err).Msgf("preview lookup failed: attempt=%d/%d track=%s", attempt+1, maxAttempts, candidate.ID)
			continue
		}

		for _, p := range previews {
			if !p.IsSong() || !p.ReleasedSince(e.cfg.MinReleaseYear) || !track.MatchesCandidate(*candidate, p) {
				continue
			}
			if resolved := track.Resolve(*candidate, p); resolved != nil {
				logger.Info().Msgf("track resolved: attempt=%d id=%s title=%q artist=%q",
					attempt+1, resolved.ID, resolved.Title, resolved.Artist)
				return resolved, nil
			}
		}

		knownBad[candidate.ID] = true
		logger.Debug().Msgf("no matching preview: attempt=%d/%d title=%q artist=%q previews=%d",
			attempt+1, maxAttempts, candidate.Title, candidate.Artist, len(previews))
	}

	logger.Info().Msgf("resolution attempts exhausted: attempts=%d", maxAttempts)
	return nil, nil
}

// draw asks the source for one candidate under the per-call timeout.
func (e *Engine) draw(ctx context.Context, src Source, attempt int, skip func(string) bool) (*track.Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return src.Draw(callCtx, attempt, skip)
}

// lookupPreview searches the preview provider for "<title> <artist>".
func (e *Engine) lookupPreview(ctx context.Context, c track.Candidate) ([]track.PreviewCandidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.preview.SearchRaw(callCtx, itunes.SearchParams{
		Term:    fmt.Sprintf("%s %s", c.Title, c.Artist),
		Limit:   e.cfg.PreviewLimit,
		Country: e.cfg.Country,
	})
}

// intn returns a uniform random index in [0, n).
func (e *Engine) intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

func newRNG() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
