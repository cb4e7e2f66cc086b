package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/hyperjump/niteru/internal/models"
)

// MockEmbedder is a deterministic embedder for tests and for running without a model.
// Component i is the RMS energy of the i-th equal segment of the clip, so similar
// waveforms land close together.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed fails with ErrEmbeddingFailed on empty or silent input.
func (e *MockEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty clip", models.ErrEmbeddingFailed)
	}

	emb := make([]float32, e.dimensions)
	var total float64
	for i := 0; i < e.dimensions; i++ {
		start := i * len(samples) / e.dimensions
		end := (i + 1) * len(samples) / e.dimensions
		if end <= start {
			end = start + 1
		}
		if end > len(samples) {
			end = len(samples)
			start = end - 1
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(end-start))
		emb[i] = float32(rms)
		total += rms
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: silent clip", models.ErrEmbeddingFailed)
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
