package track

import "strings"

// Mode represents how a track is selected.
type Mode int

const (
	ModePlaylist Mode = iota // Random track from a playlist
	ModeArtist               // Random track by an artist
	ModeDaily                // Date-seeded pick from the daily playlist
	ModeChart                // Random track from a genre chart
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModePlaylist:
		return "playlist"
	case ModeArtist:
		return "artist"
	case ModeDaily:
		return "daily"
	case ModeChart:
		return "chart"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. Empty and unknown names return false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playlist":
		return ModePlaylist, true
	case "artist":
		return ModeArtist, true
	case "daily":
		return ModeDaily, true
	case "chart", "genre":
		return ModeChart, true
	default:
		return 0, false
	}
}

// SelectionContext describes how to pick a track for one resolution call.
// The resolver treats it as read-only.
type SelectionContext struct {
	Mode       Mode
	Parameter  string          // playlist ID, artist name, or genre ID
	ExcludeIDs map[string]bool // track IDs already used in this game session
}

// IsExcluded reports whether the track ID was already used.
func (s SelectionContext) IsExcluded(id string) bool {
	return s.ExcludeIDs[id]
}
