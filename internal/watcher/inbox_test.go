package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/niteru/internal/models"
)

type fakeIngester struct {
	mu      sync.Mutex
	batches [][]string
	fail    map[string]bool
	err     error
}

func (f *fakeIngester) IngestBatch(_ context.Context, queries []models.TrackQuery) (*models.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, len(queries))
	result := &models.IngestResult{}
	for i, q := range queries {
		paths[i] = q.Path
		if f.fail[q.Path] {
			result.Failures = append(result.Failures, models.IngestFailure{Query: q, Reason: "DecodeFailed"})
			continue
		}
		result.Inserted++
	}
	f.batches = append(f.batches, paths)
	if f.err != nil {
		return result, f.err
	}
	return result, nil
}

func (f *fakeIngester) snapshot() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func TestInbox_BatchesWithinWindow(t *testing.T) {
	ing := &fakeIngester{}
	inbox := NewInbox(context.Background(), ing, WithWindow(100*time.Millisecond))

	inbox.Add("/in/a.wav")
	inbox.Add("/in/b.wav")
	inbox.Add("/in/a.wav")
	require.Equal(t, 2, inbox.Pending())

	require.Eventually(t, func() bool { return len(ing.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"/in/a.wav", "/in/b.wav"}, ing.snapshot()[0])
	require.Zero(t, inbox.Pending())
}

func TestInbox_MaxBatchFlushesImmediately(t *testing.T) {
	ing := &fakeIngester{}
	inbox := NewInbox(context.Background(), ing, WithWindow(time.Hour), WithMaxBatch(2))

	inbox.Add("/in/a.wav")
	inbox.Add("/in/b.wav")

	require.Eventually(t, func() bool { return len(ing.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Len(t, ing.snapshot()[0], 2)
}

func TestInbox_IngestedNotRequeuedFailedRetried(t *testing.T) {
	ing := &fakeIngester{fail: map[string]bool{"/in/bad.wav": true}}
	var results []*models.IngestResult
	inbox := NewInbox(context.Background(), ing,
		WithWindow(time.Hour),
		WithResultHook(func(r *models.IngestResult, err error) { results = append(results, r) }))

	inbox.Add("/in/good.wav")
	inbox.Add("/in/bad.wav")
	inbox.Flush()
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Inserted)

	inbox.Add("/in/good.wav")
	inbox.Add("/in/bad.wav")
	require.Equal(t, 1, inbox.Pending())
	inbox.Flush()
	require.Equal(t, []string{"/in/bad.wav"}, ing.snapshot()[1])
}

func TestInbox_CommitFailureRetriesAll(t *testing.T) {
	ing := &fakeIngester{err: errors.New("commit failed")}
	inbox := NewInbox(context.Background(), ing, WithWindow(time.Hour))

	inbox.Add("/in/a.wav")
	inbox.Flush()

	inbox.Add("/in/a.wav")
	require.Equal(t, 1, inbox.Pending())
}

func TestInbox_FlushEmpty(t *testing.T) {
	ing := &fakeIngester{}
	NewInbox(context.Background(), ing).Flush()
	require.Empty(t, ing.snapshot())
}
