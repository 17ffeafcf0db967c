// Package autocomplete provides guess suggestions backed by metadata search.
package autocomplete

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/earshot/internal/domain/track"
)

// Searcher defines the metadata search needed by the index.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int, market string) ([]track.Candidate, error)
}

// Config represents autocomplete configuration.
type Config struct {
	CacheSize      int `default:"20" validate:"gt=0"`
	MaxResults     int `default:"10" validate:"gt=0,lte=50"`
	MinQueryLength int `default:"2" validate:"gt=0"`
	Market         string
}

// Index returns suggestions for partial guesses.
// Results are cached per normalized query in insertion order; the oldest
// entry is evicted when the cache is full.
type Index struct {
	search Searcher
	cfg    Config

	mu    sync.Mutex
	cache map[string][]track.Candidate
	order []string // insertion order, oldest first
}

// New creates a new autocomplete index. Zero config fields take their defaults.
func New(search Searcher, cfg Config) (*Index, error) {
	if search == nil {
		return nil, errors.New("searcher is required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &Index{
		search: search,
		cfg:    cfg,
		cache:  make(map[string][]track.Candidate, cfg.CacheSize),
		order:  make([]string, 0, cfg.CacheSize),
	}, nil
}

// Suggest returns up to MaxResults candidates for a partial query.
// Queries shorter than MinQueryLength return nothing without a lookup.
func (x *Index) Suggest(ctx context.Context, query string) ([]track.Candidate, error) {
	key := normalize(query)
	if len([]rune(key)) < x.cfg.MinQueryLength {
		return []track.Candidate{}, nil
	}

	if cached, ok := x.get(key); ok {
		zlog.Debug().Msgf("autocomplete cache hit: query=%q", key)
		return cached, nil
	}

	results, err := x.search.SearchTracks(ctx, key, x.cfg.MaxResults, x.cfg.Market)
	if err != nil {
		return nil, errors.Wrap(err, "autocomplete search failed")
	}
	if len(results) > x.cfg.MaxResults {
		results = results[:x.cfg.MaxResults]
	}

	x.put(key, results)
	return results, nil
}

// Len returns the number of cached queries.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.order)
}

func (x *Index) get(key string) ([]track.Candidate, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	results, ok := x.cache[key]
	if !ok {
		return nil, false
	}
	return append([]track.Candidate(nil), results...), true
}

func (x *Index) put(key string, results []track.Candidate) {
	results = append(make([]track.Candidate, 0, len(results)), results...)

	x.mu.Lock()
	defer x.mu.Unlock()

	// A concurrent lookup may have stored the same query already
	if _, ok := x.cache[key]; ok {
		x.cache[key] = results
		return
	}

	if len(x.order) >= x.cfg.CacheSize {
		oldest := x.order[0]
		x.order = x.order[1:]
		delete(x.cache, oldest)
	}
	x.cache[key] = results
	x.order = append(x.order, key)
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
