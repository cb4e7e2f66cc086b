package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/storage"
)

// DefaultWorkers bounds concurrent jobs when no limit is configured.
const DefaultWorkers = 5

// Coordinator fans a batch out to a bounded pool of workers and commits every success
// in one store transaction.
type Coordinator struct {
	worker        Processor
	store         storage.VectorStore
	tracks        keyword.TrackIndex
	workers       int
	commitTimeout time.Duration
	progress      func(done, total int)
	logger        *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithWorkers sets the pool size. Non-positive values keep the default.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCommitTimeout bounds the batch commit.
func WithCommitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.commitTimeout = d
	}
}

// WithTrackIndex feeds committed tracks to the catalog text index.
func WithTrackIndex(idx keyword.TrackIndex) Option {
	return func(c *Coordinator) {
		c.tracks = idx
	}
}

// WithProgress is called after each job finishes. Calls are serialized.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// NewCoordinator creates a coordinator that writes to store.
func NewCoordinator(worker Processor, store storage.VectorStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		worker:  worker,
		store:   store,
		workers: DefaultWorkers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IngestBatch processes every query and commits the successful records atomically.
//
// Per-track failures are reported in the result and never abort the batch. A store error,
// or cancellation of ctx before the commit, fails the whole batch with models.ErrCommitFailed
// and nothing is written.
func (c *Coordinator) IngestBatch(ctx context.Context, queries []models.TrackQuery) (*models.IngestResult, error) {
	jobs := make([]*models.IngestJob, len(queries))
	for i, q := range queries {
		jobs[i] = &models.IngestJob{ID: uuid.NewString(), Query: q, Status: models.JobPending}
	}

	c.run(ctx, jobs)

	result := &models.IngestResult{Failures: []models.IngestFailure{}}
	var records []*models.TrackRecord
	for _, job := range jobs {
		switch job.Status {
		case models.JobSucceeded:
			records = append(records, job.Record)
		default:
			err := job.Err
			if err == nil {
				err = fmt.Errorf("job not processed")
			}
			result.Failures = append(result.Failures, models.IngestFailure{
				Query:  job.Query,
				Reason: models.Kind(err),
				Detail: err.Error(),
			})
		}
	}

	if err := ctx.Err(); err != nil {
		c.logger.Warn("ingestion cancelled before commit", zap.Int("pending_records", len(records)), zap.Error(err))
		return result, fmt.Errorf("%w: %w", models.ErrCommitFailed, err)
	}
	if len(records) == 0 {
		c.logger.Info("ingestion batch finished", zap.Int("inserted", 0), zap.Int("failed", len(result.Failures)))
		return result, nil
	}

	commitCtx := ctx
	if c.commitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, c.commitTimeout)
		defer cancel()
	}
	ids, err := c.store.InsertBatch(commitCtx, records)
	if err != nil {
		c.logger.Error("batch commit failed", zap.Int("records", len(records)), zap.Error(err))
		return result, fmt.Errorf("%w: %w", models.ErrCommitFailed, err)
	}
	result.Inserted = len(ids)
	result.IDs = ids

	if c.tracks != nil {
		if err := c.tracks.Index(ctx, records); err != nil {
			c.logger.Warn("failed to update track index", zap.Error(err))
		}
	}
	c.logger.Info("ingestion batch committed",
		zap.Int("inserted", result.Inserted),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// run processes jobs on at most c.workers goroutines. Finished jobs flow through a single
// channel to a collector that logs failures and reports progress.
func (c *Coordinator) run(ctx context.Context, jobs []*models.IngestJob) {
	finished := make(chan *models.IngestJob, len(jobs))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		done := 0
		for job := range finished {
			done++
			if job.Status == models.JobFailed {
				c.logger.Warn("track ingestion failed",
					zap.String("query", job.Query.String()),
					zap.String("reason", models.Kind(job.Err)),
					zap.Error(job.Err),
				)
			}
			if c.progress != nil {
				c.progress(done, len(jobs))
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, job := range jobs {
		if ctx.Err() != nil {
			// Stop dispatching; in-flight jobs finish on their own. Skipped jobs still
			// count toward progress.
			job.Status = models.JobFailed
			job.Err = ctx.Err()
			finished <- job
			continue
		}
		g.Go(func() error {
			c.worker.Process(ctx, job)
			finished <- job
			return nil
		})
	}
	_ = g.Wait()
	close(finished)
	<-collected
}
