// Package keyword indexes track titles and artists for text lookup and "did you mean" suggestions.
package keyword

import (
	"context"

	"github.com/hyperjump/niteru/internal/models"
)

// TrackIndex defines catalog text search over stored tracks.
type TrackIndex interface {
	Index(ctx context.Context, records []*models.TrackRecord) error
	Search(ctx context.Context, query string, limit int, fuzzy bool) ([]*Hit, error)
	Suggest(ctx context.Context, q models.TrackQuery, limit int) ([]*Hit, error)
	Delete(ctx context.Context, id int64) error
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single text search match.
type Hit struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Artist string  `json:"artist"`
	Score  float64 `json:"score"`
}
