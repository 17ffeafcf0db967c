// Package track provides the Track domain entity and its provider-side candidates.
package track

import (
	"strconv"
	"strings"
)

// Track is a fully resolved, game-ready track.
// Identity and display fields come from the metadata provider,
// PreviewURL comes from the preview provider.
type Track struct {
	ID         string `json:"id"`         // Metadata provider track ID
	Title      string `json:"title"`      // Track title
	Artist     string `json:"artist"`     // Primary artist name
	AlbumArt   string `json:"albumArt"`   // Largest album art URL (optional)
	PreviewURL string `json:"previewUrl"` // Short audio clip URL
}

// Candidate is an unverified search result from the metadata provider.
type Candidate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	AlbumArt   string `json:"albumArt"`
	Popularity int    `json:"popularity"`
}

// PreviewCandidate is a raw search result from the preview provider.
// ReleaseDate and Kind are only used for filtering, see IsSong and ReleasedSince.
type PreviewCandidate struct {
	TrackID     int64
	Title       string
	Artist      string
	PreviewURL  string
	ArtworkURL  string
	ReleaseDate string
	Kind        string
}

// ChartEntry is one row of the preview provider's chart feed.
type ChartEntry struct {
	ID         string
	Name       string
	ArtistName string
}

// Resolve merges a metadata candidate with its matched preview.
// Returns nil if the preview has no URL or the candidate has no identity.
func Resolve(meta Candidate, preview PreviewCandidate) *Track {
	if meta.ID == "" || preview.PreviewURL == "" {
		return nil
	}
	return &Track{
		ID:         meta.ID,
		Title:      meta.Title,
		Artist:     meta.Artist,
		AlbumArt:   meta.AlbumArt,
		PreviewURL: preview.PreviewURL,
	}
}

// IsSong reports whether the preview result is a song.
// Results without a kind are treated as songs.
func (p PreviewCandidate) IsSong() bool {
	return p.Kind == "" || p.Kind == "song"
}

// ReleasedSince reports whether the preview was released in year or later.
// ReleaseDate starts with a four digit year ("2017-03-30T07:00:00Z").
// A missing or unparseable date fails the check unless year is 0 or less.
func (p PreviewCandidate) ReleasedSince(year int) bool {
	if year <= 0 {
		return true
	}
	date := strings.TrimSpace(p.ReleaseDate)
	if len(date) < 4 {
		return false
	}
	released, err := strconv.Atoi(date[:4])
	if err != nil {
		return false
	}
	return released >= year
}

// Matches reports whether a preview title/artist pair refers to the same
// track as a metadata title/artist pair. Both fields must contain each other
// in either direction, case-insensitively.
func Matches(metaTitle, metaArtist, previewTitle, previewArtist string) bool {
	return containsEither(metaTitle, previewTitle) && containsEither(metaArtist, previewArtist)
}

// MatchesCandidate applies Matches and additionally requires a playable preview.
func MatchesCandidate(meta Candidate, preview PreviewCandidate) bool {
	if preview.PreviewURL == "" {
		return false
	}
	return Matches(meta.Title, meta.Artist, preview.Title, preview.Artist)
}

func containsEither(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
