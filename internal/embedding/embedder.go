// Package embedding turns decoded audio into fixed-length vectors and caches the results.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/hyperjump/niteru/internal/models"
)

// Embedder produces a fixed-length embedding for mono audio samples at the given rate.
// Failures are reported as models.ErrEmbeddingFailed.
type Embedder interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)
	Dimensions() int
	Close() error
}

// CheckOutput rejects an embedding that is the wrong length or contains NaN or Inf.
// The vector is never padded or truncated.
func CheckOutput(vec []float32, dimensions int) error {
	if err := models.CheckDimension(vec, dimensions); err != nil {
		return fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite value at %d", models.ErrEmbeddingFailed, i)
		}
	}
	return nil
}
