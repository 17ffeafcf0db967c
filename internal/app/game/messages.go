package game

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/earshot/internal/domain/track"
)

// Messages holds the user-facing texts shown when a round cannot start.
// "{param}" is replaced with the selection parameter.
type Messages struct {
	Playlist        string `yaml:"playlist" default:"No suitable tracks found for this playlist. Try a different playlist."`
	Artist          string `yaml:"artist" default:"No suitable tracks found for artist \"{param}\". Try a different artist."`
	Daily           string `yaml:"daily" default:"Today's song is not available right now. Please try again later."`
	Chart           string `yaml:"chart" default:"No suitable tracks found for this genre. Try a different genre."`
	InvalidPlaylist string `yaml:"invalid_playlist" default:"Playlist not found. Check the playlist link or ID."`
	Unavailable     string `yaml:"unavailable" default:"Could not load a track. Please try again later."`
}

// NotFound returns the message for a selection that resolved to no track.
func (m Messages) NotFound(sel track.SelectionContext) string {
	var msg string
	switch sel.Mode {
	case track.ModeArtist:
		msg = m.Artist
	case track.ModeDaily:
		msg = m.Daily
	case track.ModeChart:
		msg = m.Chart
	default:
		msg = m.Playlist
	}
	return strings.ReplaceAll(msg, "{param}", sel.Parameter)
}

// ForError returns the message for a resolution failure.
func (m Messages) ForError(sel track.SelectionContext, err error) string {
	switch {
	case err == nil:
		return m.NotFound(sel)
	case errors.Is(err, track.ErrPlaylistNotFound):
		return m.InvalidPlaylist
	default:
		return m.Unavailable
	}
}
