package models

import (
	"fmt"
	"strings"
)

// TrackQuery identifies a track to ingest or look up. Path is set for local audio files,
// in which case Artist and Title are optional metadata.
type TrackQuery struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Path   string `json:"path,omitempty"`
}

// Normalize trims surrounding whitespace from all fields.
func (q *TrackQuery) Normalize() {
	q.Artist = strings.TrimSpace(q.Artist)
	q.Title = strings.TrimSpace(q.Title)
	q.Path = strings.TrimSpace(q.Path)
}

// Validate normalizes the query and requires both artist and title.
func (q *TrackQuery) Validate() error {
	q.Normalize()
	if q.Artist == "" || q.Title == "" {
		return fmt.Errorf("%w: artist and title are required", ErrInvalidQuery)
	}
	return nil
}

// SearchText is the free-text form used by web resolvers ("artist title").
func (q TrackQuery) SearchText() string {
	return strings.TrimSpace(q.Artist + " " + q.Title)
}

func (q TrackQuery) String() string {
	if q.Path != "" && q.Title == "" {
		return q.Path
	}
	return fmt.Sprintf("%s - %s", q.Artist, q.Title)
}

// SimilarQuery is a similarity request: either a lookup key (ID or artist/title) or a raw vector.
type SimilarQuery struct {
	ID     int64     `json:"id,omitempty"`
	Artist string    `json:"artist,omitempty"`
	Title  string    `json:"title,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	K      int       `json:"k,omitempty"`
}

// ByVector reports whether the query carries a raw vector instead of a lookup key.
func (q *SimilarQuery) ByVector() bool {
	return len(q.Vector) > 0
}

// Validate trims the key, applies the default k, and caps k at maxK.
func (q *SimilarQuery) Validate(defaultK, maxK int) error {
	q.Artist = strings.TrimSpace(q.Artist)
	q.Title = strings.TrimSpace(q.Title)
	if !q.ByVector() && q.ID == 0 && (q.Artist == "" || q.Title == "") {
		return fmt.Errorf("%w: artist and title are required", ErrInvalidQuery)
	}
	if q.K < 0 {
		return fmt.Errorf("%w: k must be positive", ErrInvalidQuery)
	}
	if q.K == 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}

// SimilarResponse is the result of a similarity query. Query is the resolved
// record for key lookups and nil for vector queries.
type SimilarResponse struct {
	Query     *TrackRecord `json:"query,omitempty"`
	Neighbors []Neighbor   `json:"songs"`
	QueryTime int64        `json:"query_time_ms"`
}
