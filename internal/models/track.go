// Package models defines core data structures for tracks, ingestion jobs, and neighbor lists.
package models

import "time"

// TrackRecord is the persisted unit: one song and its embedding.
// ID is zero until the store assigns it on insert.
type TrackRecord struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Artist    string    `json:"artist" db:"artist"`
	Source    string    `json:"source,omitempty" db:"source"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Neighbor is one entry of a similarity result.
type Neighbor struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Distance float64 `json:"distance"`
}

// ScoredRecord pairs a stored record with its distance to a query vector.
type ScoredRecord struct {
	Record   *TrackRecord
	Distance float64
}
