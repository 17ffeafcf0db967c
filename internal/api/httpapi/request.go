package httpapi

import (
	"net/url"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/earshot/internal/domain/track"
)

var validate = validator.New()

// randomSongRequest is the query of GET /api/song-random.
type randomSongRequest struct {
	PlaylistID string `mapstructure:"playlistId"`
	ArtistName string `mapstructure:"artistName"`
	GenreID    string `mapstructure:"genreId" validate:"omitempty,numeric"`
	Mode       string `mapstructure:"mode" validate:"omitempty,oneof=playlist artist daily chart genre"`
	ExcludeIDs string `mapstructure:"exclude_ids"`
}

// searchRequest is the query of GET /api/songs-search.
type searchRequest struct {
	Term string `mapstructure:"term" validate:"required"`
}

// validatePlaylistRequest is the query of GET /api/playlist-validate.
type validatePlaylistRequest struct {
	ID string `mapstructure:"id" validate:"required"`
}

// decodeQuery decodes the first value of each query parameter into out and validates it.
func decodeQuery(q url.Values, out any) error {
	params := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) > 0 {
			params[k] = strings.TrimSpace(v[0])
		}
	}
	if err := mapstructure.Decode(params, out); err != nil {
		return errors.Wrap(err, "failed to decode query")
	}
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "invalid query")
	}
	return nil
}

// selection derives the selection context. An explicit mode wins; otherwise
// playlistId, artistName and genreId are tried in that order.
func (r randomSongRequest) selection() (track.SelectionContext, error) {
	sel := track.SelectionContext{ExcludeIDs: parseExcludeIDs(r.ExcludeIDs)}

	mode, explicit := track.ParseMode(r.Mode)
	if !explicit {
		switch {
		case r.PlaylistID != "":
			mode = track.ModePlaylist
		case r.ArtistName != "":
			mode = track.ModeArtist
		case r.GenreID != "":
			mode = track.ModeChart
		default:
			return sel, errors.New("playlistId or artistName is required")
		}
	}

	sel.Mode = mode
	switch mode {
	case track.ModePlaylist:
		sel.Parameter = r.PlaylistID
	case track.ModeArtist:
		sel.Parameter = r.ArtistName
	case track.ModeChart:
		sel.Parameter = r.GenreID
	}
	switch {
	case mode == track.ModePlaylist && sel.Parameter == "":
		return sel, errors.New("playlist mode requires playlistId")
	case mode == track.ModeArtist && sel.Parameter == "":
		return sel, errors.New("artist mode requires artistName")
	}
	return sel, nil
}

// parseExcludeIDs parses a comma-separated ID list.
func parseExcludeIDs(s string) map[string]bool {
	ids := make(map[string]bool)
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = true
		}
	}
	return ids
}

// formatExcludeIDs is the inverse of parseExcludeIDs.
func formatExcludeIDs(ids map[string]bool) string {
	list := make([]string, 0, len(ids))
	for id, ok := range ids {
		if ok {
			list = append(list, id)
		}
	}
	sort.Strings(list)
	return strings.Join(list, ",")
}
