// Package catalog builds and loads track lists used to seed the store.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/niteru/internal/models"
)

// Entry is one catalog track. Genre and URL are set by the Last.fm builder.
type Entry struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Queries converts entries to ingestion queries, dropping entries without a title or artist
// and repeated (artist, title) pairs.
func Queries(entries []Entry) []models.TrackQuery {
	seen := make(map[string]bool, len(entries))
	out := make([]models.TrackQuery, 0, len(entries))
	for _, e := range entries {
		q := models.TrackQuery{Artist: e.Artist, Title: e.Title}
		if err := q.Validate(); err != nil {
			continue
		}
		key := strings.ToLower(q.Artist + "\x00" + q.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// WriteJSON writes entries to path as an indented JSON array.
func WriteJSON(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
