// Package ingest turns track queries into stored embedding records.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/embedding"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/source"
)

// Decoder turns a fetched artifact into a clip.
type Decoder interface {
	Decode(ctx context.Context, path, format string) (*audio.Clip, error)
}

// Processor runs a single ingestion job to completion.
type Processor interface {
	Process(ctx context.Context, job *models.IngestJob)
}

// Worker resolves, fetches, decodes and embeds one track.
type Worker struct {
	resolver source.Resolver
	fetcher  source.Fetcher
	decoder  Decoder
	embedder embedding.Embedder
	cache    embedding.Cache
	logger   *zap.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithCache skips resolve, fetch and embed for tracks whose embedding is cached.
func WithCache(c embedding.Cache) WorkerOption {
	return func(w *Worker) {
		w.cache = c
	}
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a worker from its capabilities.
func NewWorker(resolver source.Resolver, fetcher source.Fetcher, decoder Decoder, embedder embedding.Embedder, opts ...WorkerOption) *Worker {
	w := &Worker{
		resolver: resolver,
		fetcher:  fetcher,
		decoder:  decoder,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process sets job.Status exactly once, along with job.Record or job.Err. It never panics.
func (w *Worker) Process(ctx context.Context, job *models.IngestJob) {
	defer func() {
		if r := recover(); r != nil {
			job.Status = models.JobFailed
			job.Record = nil
			job.Err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	rec, err := w.process(ctx, job.Query)
	if err != nil {
		job.Status = models.JobFailed
		job.Err = err
		return
	}
	job.Status = models.JobSucceeded
	job.Record = rec
}

func (w *Worker) process(ctx context.Context, q models.TrackQuery) (*models.TrackRecord, error) {
	q.Normalize()
	if q.Path != "" {
		if q.Artist == "" || q.Title == "" {
			artist, title := source.ParseFileName(q.Path)
			if q.Artist == "" {
				q.Artist = artist
			}
			if q.Title == "" {
				q.Title = title
			}
		}
	} else if err := q.Validate(); err != nil {
		return nil, err
	}

	dim := w.embedder.Dimensions()
	key := embedding.TrackKey(q)
	if w.cache != nil {
		if vec, ok := w.cache.Get(key); ok && embedding.CheckOutput(vec, dim) == nil {
			w.logger.Debug("embedding cache hit", zap.String("query", q.String()))
			return &models.TrackRecord{Title: q.Title, Artist: q.Artist, Source: q.Path, Embedding: vec}, nil
		}
	}

	src, err := w.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, classify(err, models.ErrSourceResolutionFailed)
	}
	art, err := w.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, classify(err, models.ErrFetchFailed)
	}
	defer func() {
		if err := art.Remove(); err != nil {
			w.logger.Warn("failed to remove temporary audio", zap.String("path", art.Path), zap.Error(err))
		}
	}()

	clip, err := w.decoder.Decode(ctx, art.Path, art.Format)
	if err != nil {
		return nil, classify(err, models.ErrDecodeFailed)
	}
	vec, err := w.embedder.Embed(ctx, clip.Samples, clip.SampleRate)
	if err != nil {
		return nil, classify(err, models.ErrEmbeddingFailed)
	}
	if err := embedding.CheckOutput(vec, dim); err != nil {
		return nil, err
	}

	if w.cache != nil {
		w.cache.Set(key, vec)
	}
	return &models.TrackRecord{Title: q.Title, Artist: q.Artist, Source: src.Location, Embedding: vec}, nil
}

// classify tags an unclassified capability error with the step's kind.
func classify(err, kind error) error {
	if models.Kind(err) == "Internal" {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}
