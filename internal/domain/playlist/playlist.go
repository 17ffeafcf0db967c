// Package playlist provides the Playlist domain entity.
package playlist

import "github.com/osa030/earshot/internal/domain/track"

// Details is the lightweight playlist metadata used for input validation.
type Details struct {
	ID          string // Metadata provider playlist ID
	Name        string // Playlist name
	TotalTracks int    // Number of entries in the playlist
}

// Playlist is a pool of track candidates drawn from one metadata lookup,
// either a provider playlist or an artist search.
type Playlist struct {
	Details
	Tracks []track.Candidate
}

// Available returns the tracks for which skip reports false.
// A nil skip keeps every track.
func (p *Playlist) Available(skip func(id string) bool) []track.Candidate {
	result := make([]track.Candidate, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if skip == nil || !skip(t.ID) {
			result = append(result, t)
		}
	}
	return result
}
