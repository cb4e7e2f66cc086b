package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/models"
)

// Ingester commits a batch of track queries.
type Ingester interface {
	IngestBatch(ctx context.Context, queries []models.TrackQuery) (*models.IngestResult, error)
}

// Inbox groups settled files into ingestion batches. A batch is sent when window elapses after
// its first file or when it reaches maxBatch files. Batches are committed one at a time.
// A file that was ingested is not queued again; a file that failed is retried when it changes.
type Inbox struct {
	ctx      context.Context
	ingester Ingester
	window   time.Duration
	maxBatch int
	logger   *zap.Logger
	onResult func(*models.IngestResult, error)

	mu       sync.Mutex
	pending  []string
	queued   map[string]bool
	ingested map[string]bool
	timer    *time.Timer

	flushMu sync.Mutex
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithWindow sets how long the inbox waits for more files before sending a batch.
func WithWindow(d time.Duration) InboxOption {
	return func(b *Inbox) { b.window = d }
}

// WithMaxBatch caps the number of files per batch.
func WithMaxBatch(n int) InboxOption {
	return func(b *Inbox) {
		if n > 0 {
			b.maxBatch = n
		}
	}
}

// WithInboxLogger sets the logger.
func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(b *Inbox) { b.logger = l }
}

// WithResultHook is called after each batch.
func WithResultHook(fn func(*models.IngestResult, error)) InboxOption {
	return func(b *Inbox) { b.onResult = fn }
}

// NewInbox creates an inbox whose batches run under ctx.
func NewInbox(ctx context.Context, ingester Ingester, opts ...InboxOption) *Inbox {
	b := &Inbox{
		ctx:      ctx,
		ingester: ingester,
		window:   2 * time.Second,
		maxBatch: 50,
		logger:   zap.NewNop(),
		queued:   make(map[string]bool),
		ingested: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add queues a file. It is safe to use as a Watcher callback.
func (b *Inbox) Add(path string) {
	b.mu.Lock()
	if b.queued[path] || b.ingested[path] {
		b.mu.Unlock()
		return
	}
	b.queued[path] = true
	b.pending = append(b.pending, path)
	full := len(b.pending) >= b.maxBatch
	if !full && b.timer == nil {
		b.timer = time.AfterFunc(b.window, func() { b.Flush() })
	}
	b.mu.Unlock()

	if full {
		go b.Flush()
	}
}

// Flush sends the queued files as one batch and waits for its commit.
func (b *Inbox) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	paths := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(paths) == 0 {
		return
	}

	queries := make([]models.TrackQuery, len(paths))
	for i, p := range paths {
		queries[i] = models.TrackQuery{Path: p}
	}
	b.logger.Info("ingesting inbox batch", zap.Int("files", len(paths)))
	result, err := b.ingester.IngestBatch(b.ctx, queries)

	failed := make(map[string]bool)
	if result != nil {
		for _, f := range result.Failures {
			failed[f.Query.Path] = true
			b.logger.Warn("inbox file failed",
				zap.String("path", f.Query.Path),
				zap.String("reason", f.Reason),
				zap.String("detail", f.Detail))
		}
	}

	b.mu.Lock()
	for _, p := range paths {
		delete(b.queued, p)
		if err == nil && !failed[p] {
			b.ingested[p] = true
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("inbox batch failed", zap.Int("files", len(paths)), zap.Error(err))
	}
	if b.onResult != nil {
		b.onResult(result, err)
	}
}

// Pending returns the number of queued files.
func (b *Inbox) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
