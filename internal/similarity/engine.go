// Package similarity answers nearest-neighbor queries over stored track embeddings.
package similarity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/storage"
)

const suggestionLimit = 3

// Engine resolves a lookup key or raw vector and returns its nearest stored neighbors.
// It holds no state of its own; every call reads the store as it is at call time.
type Engine struct {
	store      storage.VectorStore
	trackIndex keyword.TrackIndex
	config     *config.SearchConfig
	logger     *zap.Logger
}

// NewEngine creates a similarity engine. trackIndex may be nil; it is only used to
// attach suggestions to NotFound errors.
func NewEngine(store storage.VectorStore, trackIndex keyword.TrackIndex, cfg *config.SearchConfig, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{DefaultK: 5, MaxK: 50, Ambiguity: config.AmbiguityFirst}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		trackIndex: trackIndex,
		config:     cfg,
		logger:     logger,
	}
}

// FindSimilar returns up to q.K neighbors ordered by ascending L2 distance, ties by id.
// Key lookups never include the query record itself.
func (e *Engine) FindSimilar(ctx context.Context, q *models.SimilarQuery) (*models.SimilarResponse, error) {
	start := time.Now()
	if err := q.Validate(e.config.DefaultK, e.config.MaxK); err != nil {
		return nil, err
	}

	var (
		anchor    *models.TrackRecord
		vec       []float32
		excludeID int64
	)
	if q.ByVector() {
		if err := models.CheckDimension(q.Vector, e.store.Dimensions()); err != nil {
			return nil, err
		}
		vec = q.Vector
	} else {
		rec, err := e.Resolve(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(rec.Embedding) == 0 {
			return nil, fmt.Errorf("%w: %s - %s (id %d)", models.ErrMissingEmbedding, rec.Artist, rec.Title, rec.ID)
		}
		anchor, vec, excludeID = rec, rec.Embedding, rec.ID
	}

	scored, err := e.store.KNearest(ctx, vec, q.K, excludeID)
	if err != nil {
		return nil, err
	}

	resp := &models.SimilarResponse{
		Query:     anchor,
		Neighbors: make([]models.Neighbor, 0, len(scored)),
	}
	for _, s := range scored {
		// the store already excludes by id; this keeps the guarantee for any backend
		if excludeID != 0 && s.Record.ID == excludeID {
			continue
		}
		if len(resp.Neighbors) == q.K {
			break
		}
		resp.Neighbors = append(resp.Neighbors, models.Neighbor{
			ID:       s.Record.ID,
			Title:    s.Record.Title,
			Artist:   s.Record.Artist,
			Distance: s.Distance,
		})
	}
	resp.QueryTime = time.Since(start).Milliseconds()

	e.logger.Debug("similarity query",
		zap.Bool("by_vector", q.ByVector()),
		zap.Int64("anchor_id", excludeID),
		zap.Int("k", q.K),
		zap.Int("results", len(resp.Neighbors)))
	return resp, nil
}

// Resolve maps a lookup key to exactly one stored record, applying the ambiguity policy
// when (title, artist) matches several records.
func (e *Engine) Resolve(ctx context.Context, q *models.SimilarQuery) (*models.TrackRecord, error) {
	if q.ID != 0 {
		return e.store.Get(ctx, q.ID)
	}

	matches, err := e.store.GetByKey(ctx, q.Title, q.Artist)
	if err != nil {
		return nil, err
	}
	switch {
	case len(matches) == 0:
		return nil, e.notFound(ctx, q)
	case len(matches) > 1 && e.config.Ambiguity == config.AmbiguityError:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = fmt.Sprint(m.ID)
		}
		return nil, fmt.Errorf("%w: %q by %q matches ids %s", models.ErrAmbiguousKey, q.Title, q.Artist, strings.Join(ids, ", "))
	}
	// GetByKey orders by id, so "first" is the lowest id.
	return matches[0], nil
}

func (e *Engine) notFound(ctx context.Context, q *models.SimilarQuery) error {
	nf := &NotFoundError{Artist: q.Artist, Title: q.Title}
	if e.trackIndex == nil {
		return nf
	}
	hits, err := e.trackIndex.Suggest(ctx, models.TrackQuery{Artist: q.Artist, Title: q.Title}, suggestionLimit)
	if err != nil {
		e.logger.Warn("suggestion lookup failed", zap.Error(err))
		return nf
	}
	nf.Suggestions = hits
	return nf
}

// NotFoundError reports a lookup key with no stored record, with close catalog matches if any.
type NotFoundError struct {
	Artist      string
	Title       string
	Suggestions []*keyword.Hit
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("not found: %s - %s", e.Artist, e.Title)
	if len(e.Suggestions) > 0 {
		names := make([]string, len(e.Suggestions))
		for i, h := range e.Suggestions {
			names[i] = fmt.Sprintf("%s - %s", h.Artist, h.Title)
		}
		msg += " (did you mean: " + strings.Join(names, "; ") + ")"
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == models.ErrNotFound }
