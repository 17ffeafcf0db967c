package itunes

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/earshot/internal/domain/track"
)

// chartKind tags which feed layout a chart document was decoded from.
type chartKind int

const (
	chartUnknown chartKind = iota
	chartResults           // feed.results[]{id,name,artistName}
	chartEntries           // legacy RSS: feed.entry[]{id.attributes.im:id, im:name, im:artist}
)

type chartDocument struct {
	kind    chartKind
	entries []track.ChartEntry
}

type resultsFeed struct {
	Feed struct {
		Results []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			ArtistName string `json:"artistName"`
		} `json:"results"`
	} `json:"feed"`
}

type label struct {
	Label string `json:"label"`
}

type rssEntry struct {
	ID struct {
		Attributes struct {
			ID string `json:"im:id"`
		} `json:"attributes"`
	} `json:"id"`
	Name   label `json:"im:name"`
	Artist label `json:"im:artist"`
}

type entryFeed struct {
	Feed struct {
		Entry json.RawMessage `json:"entry"`
	} `json:"feed"`
}

// decodeChart tries the results layout first, then the legacy RSS layout.
// Invalid JSON is an error; valid JSON in neither layout is chartUnknown.
func decodeChart(body []byte) (chartDocument, error) {
	if !json.Valid(body) {
		return chartDocument{}, errors.New("chart feed is not valid JSON")
	}

	if doc, ok := decodeResults(body); ok {
		return doc, nil
	}
	if doc, ok := decodeEntries(body); ok {
		return doc, nil
	}
	return chartDocument{kind: chartUnknown, entries: []track.ChartEntry{}}, nil
}

func decodeResults(body []byte) (chartDocument, bool) {
	var feed resultsFeed
	if err := json.Unmarshal(body, &feed); err != nil || feed.Feed.Results == nil {
		return chartDocument{}, false
	}

	entries := make([]track.ChartEntry, 0, len(feed.Feed.Results))
	for _, r := range feed.Feed.Results {
		if r.Name == "" {
			continue
		}
		entries = append(entries, track.ChartEntry{ID: r.ID, Name: r.Name, ArtistName: r.ArtistName})
	}
	return chartDocument{kind: chartResults, entries: entries}, true
}

func decodeEntries(body []byte) (chartDocument, bool) {
	var feed entryFeed
	if err := json.Unmarshal(body, &feed); err != nil || len(feed.Feed.Entry) == 0 {
		return chartDocument{}, false
	}

	// A feed with a single entry carries an object instead of an array
	var raw []rssEntry
	trimmed := bytes.TrimSpace(feed.Feed.Entry)
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return chartDocument{}, false
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		var single rssEntry
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return chartDocument{}, false
		}
		raw = []rssEntry{single}
	default:
		return chartDocument{}, false
	}

	entries := make([]track.ChartEntry, 0, len(raw))
	for _, e := range raw {
		if e.Name.Label == "" {
			continue
		}
		entries = append(entries, track.ChartEntry{
			ID:         e.ID.Attributes.ID,
			Name:       e.Name.Label,
			ArtistName: e.Artist.Label,
		})
	}
	return chartDocument{kind: chartEntries, entries: entries}, true
}
