package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/earshot/internal/domain/playlist"
	"github.com/osa030/earshot/internal/domain/track"
)

// playlistSource draws random tracks from one page of a playlist.
type playlistSource struct {
	meta       MetadataClient
	playlistID string
	pageSize   int
	market     string
	pick       func(int) int

	pool *playlist.Playlist
}

func (s *playlistSource) Draw(ctx context.Context, _ int, skip func(string) bool) (*track.Candidate, error) {
	if s.pool == nil {
		tracks, err := s.meta.GetPlaylistTracks(ctx, s.playlistID, s.pageSize, s.market)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist tracks")
		}
		s.pool = &playlist.Playlist{
			Details: playlist.Details{ID: s.playlistID, TotalTracks: len(tracks)},
			Tracks:  tracks,
		}
		zlog.Debug().Msgf("playlist loaded: id=%s tracks=%d", s.playlistID, len(tracks))
	}

	c := pickAvailable(s.pool, skip, s.pick)
	if c == nil {
		return nil, errExhausted
	}
	return c, nil
}

func (s *playlistSource) Name() string {
	return "playlist"
}

// artistSource draws random tracks from an artist-scoped search.
type artistSource struct {
	meta   MetadataClient
	artist string
	limit  int
	market string
	pick   func(int) int

	pool *playlist.Playlist
}

func (s *artistSource) Draw(ctx context.Context, _ int, skip func(string) bool) (*track.Candidate, error) {
	if s.pool == nil {
		tracks, err := s.meta.SearchTracks(ctx, fmt.Sprintf("artist:%q", s.artist), s.limit, s.market)
		if err != nil {
			return nil, errors.Wrap(err, "failed to search artist tracks")
		}
		s.pool = &playlist.Playlist{
			Details: playlist.Details{Name: s.artist, TotalTracks: len(tracks)},
			Tracks:  tracks,
		}
		zlog.Debug().Msgf("artist tracks loaded: artist=%q tracks=%d", s.artist, len(tracks))
	}

	c := pickAvailable(s.pool, skip, s.pick)
	if c == nil {
		return nil, errExhausted
	}
	return c, nil
}

func (s *artistSource) Name() string {
	return "artist"
}

// dailySource picks the date-seeded track of the daily playlist.
type dailySource struct {
	meta       MetadataClient
	playlistID string
	date       string // YYYY-MM-DD, UTC

	pool *playlist.Playlist
}

func (s *dailySource) Draw(ctx context.Context, attempt int, skip func(string) bool) (*track.Candidate, error) {
	if s.pool == nil {
		tracks, err := s.meta.GetAllPlaylistTracks(ctx, s.playlistID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get daily playlist tracks")
		}
		s.pool = &playlist.Playlist{
			Details: playlist.Details{ID: s.playlistID, TotalTracks: len(tracks)},
			Tracks:  tracks,
		}
	}
	if len(s.pool.Tracks) == 0 {
		return nil, errExhausted
	}

	idx := DailyIndex(s.date, attempt, len(s.pool.Tracks))
	c := s.pool.Tracks[idx]
	if skip(c.ID) {
		return nil, nil
	}
	zlog.Debug().Msgf("daily pick: date=%s attempt=%d index=%d/%d", s.date, attempt, idx, len(s.pool.Tracks))
	return &c, nil
}

func (s *dailySource) Name() string {
	return "daily"
}

// DailyIndex returns the stable index for a date and attempt number:
// the first 8 bytes of SHA-256("<date>:<attempt>") modulo count.
func DailyIndex(date string, attempt, count int) int {
	if count <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", date, attempt)))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(count))
}

// chartSource draws random chart entries and canonicalises them through
// the metadata provider, so identity always comes from the metadata side.
type chartSource struct {
	meta     MetadataClient
	preview  PreviewClient
	chartURL string
	market   string
	pick     func(int) int

	entries []track.ChartEntry
	loaded  bool
}

func (s *chartSource) Draw(ctx context.Context, _ int, skip func(string) bool) (*track.Candidate, error) {
	if !s.loaded {
		entries, err := s.preview.FetchChart(ctx, s.chartURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch chart")
		}
		s.entries = entries
		s.loaded = true
		zlog.Debug().Msgf("chart loaded: url=%s entries=%d", s.chartURL, len(entries))
	}
	if len(s.entries) == 0 {
		return nil, errExhausted
	}

	// Each entry is tried at most once per call
	i := s.pick(len(s.entries))
	entry := s.entries[i]
	s.entries = append(s.entries[:i], s.entries[i+1:]...)

	query := fmt.Sprintf("track:%q artist:%q", entry.Name, entry.ArtistName)
	results, err := s.meta.SearchTracks(ctx, query, 1, s.market)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalise chart entry")
	}
	if len(results) == 0 || skip(results[0].ID) {
		return nil, nil
	}
	return &results[0], nil
}

func (s *chartSource) Name() string {
	return "chart"
}
