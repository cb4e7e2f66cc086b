// Package storage persists track records and answers nearest-neighbor queries over their embeddings.
package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/models"
)

// VectorStore owns all persisted track records.
//
// InsertBatch is atomic: either every record is committed and ids are assigned, or none is.
// KNearest orders by ascending L2 distance with ties broken by ascending id; excludeID 0
// disables exclusion (store ids start at 1).
type VectorStore interface {
	InsertBatch(ctx context.Context, records []*models.TrackRecord) ([]int64, error)
	GetByKey(ctx context.Context, title, artist string) ([]*models.TrackRecord, error)
	Get(ctx context.Context, id int64) (*models.TrackRecord, error)
	KNearest(ctx context.Context, query []float32, k int, excludeID int64) ([]models.ScoredRecord, error)
	List(ctx context.Context, offset, limit int) ([]*models.TrackRecord, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	Dimensions() int
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	indexType string
	hnsw      bool
}

// WithLogger sets the logger used by the store.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIndexType selects the in-process vector index used by the SQLite store ("memory" or "faiss").
func WithIndexType(indexType string) Option {
	return func(o *options) {
		o.indexType = indexType
	}
}

// WithHNSW creates an HNSW index on the Postgres embedding column.
func WithHNSW(enabled bool) Option {
	return func(o *options) {
		o.hnsw = enabled
	}
}

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ValidateRecords checks every record against the schema invariants before anything is written.
func ValidateRecords(records []*models.TrackRecord, dimensions int) error {
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: record %d is nil", models.ErrConstraintViolation, i)
		}
		if strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(rec.Artist) == "" {
			return fmt.Errorf("%w: record %d has empty title or artist", models.ErrConstraintViolation, i)
		}
		if len(rec.Embedding) != dimensions {
			return fmt.Errorf("%w: record %d (%s - %s): embedding length %d, expected %d",
				models.ErrConstraintViolation, i, rec.Artist, rec.Title, len(rec.Embedding), dimensions)
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStorageUnavailable, op, err)
}

func notFound(id int64) error {
	return fmt.Errorf("%w: track %d", models.ErrNotFound, id)
}

func checkK(k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive", models.ErrInvalidQuery)
	}
	return nil
}

// dropExcluded removes excludeID from ranked results and caps them at k.
func dropExcluded(results []models.ScoredRecord, k int, excludeID int64) []models.ScoredRecord {
	out := make([]models.ScoredRecord, 0, k)
	for _, r := range results {
		if excludeID != 0 && r.Record.ID == excludeID {
			continue
		}
		if len(out) == k {
			break
		}
		out = append(out, r)
	}
	return out
}
