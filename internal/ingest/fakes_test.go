package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/source"
	"github.com/hyperjump/niteru/internal/storage"
)

const testDim = 4

// fakeSource resolves every query except titles starting with "fail-resolve" and fetches
// into a real temp file so cleanup can be checked. Titles drive later failures:
// "fail-fetch", "fail-decode", "bad-dim" and "panic".
type fakeSource struct {
	dir      string
	delay    time.Duration
	resolves atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeSource) Resolve(ctx context.Context, q models.TrackQuery) (*source.Source, error) {
	f.resolves.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.HasPrefix(q.Title, "fail-resolve") {
		return nil, errors.New("no search results")
	}
	return &source.Source{Query: q, Location: "https://media.example/" + q.Title}, nil
}

func (f *fakeSource) Fetch(ctx context.Context, src *source.Source) (*source.Artifact, error) {
	if strings.HasPrefix(src.Query.Title, "fail-fetch") {
		return nil, fmt.Errorf("%w: http 403", models.ErrFetchFailed)
	}
	path := filepath.Join(f.dir, src.Query.Title+".pcm")
	if err := os.WriteFile(path, []byte{1, 0, 2, 0}, 0644); err != nil {
		return nil, err
	}
	return source.TempArtifact(path, audio.FormatPCM16), nil
}

// fakeDecoder signals the embedder through the clip length.
type fakeDecoder struct{}

func (fakeDecoder) Decode(ctx context.Context, path, format string) (*audio.Clip, error) {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "fail-decode"):
		return nil, errors.New("corrupt stream")
	case strings.HasPrefix(name, "bad-dim"):
		return &audio.Clip{Samples: []float32{0.1}, SampleRate: 16000}, nil
	case strings.HasPrefix(name, "panic"):
		return &audio.Clip{Samples: []float32{0.1, 0.2}, SampleRate: 16000}, nil
	}
	return &audio.Clip{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 16000}, nil
}

// fakeEmbedder returns a distinct constant vector per call: one sample means a short
// vector, two samples mean a panic.
type fakeEmbedder struct {
	dim   int
	calls atomic.Int32
	mu    sync.Mutex
	next  float32
}

func (e *fakeEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	e.calls.Add(1)
	switch len(samples) {
	case 1:
		return make([]float32, e.dim-1), nil
	case 2:
		panic("model crashed")
	}
	e.mu.Lock()
	e.next++
	v := e.next
	e.mu.Unlock()
	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = v
	}
	return vec, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dim }
func (e *fakeEmbedder) Close() error    { return nil }

// countingStore records InsertBatch calls and can be told to fail them.
type countingStore struct {
	storage.VectorStore
	commits atomic.Int32
	fail    error
}

func (s *countingStore) InsertBatch(ctx context.Context, records []*models.TrackRecord) ([]int64, error) {
	s.commits.Add(1)
	if s.fail != nil {
		return nil, s.fail
	}
	return s.VectorStore.InsertBatch(ctx, records)
}
