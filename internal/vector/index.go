// Package vector provides nearest-neighbor indexes over fixed-dimension embeddings.
package vector

import "context"

// Index is the nearest-neighbor contract behind the vector store. Implementations must be
// safe for concurrent use and return results by ascending distance, ties by ascending ID.
// An approximate index may return a different candidate set than an exact scan.
type Index interface {
	Add(ctx context.Context, ids []int64, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, ids []int64) error
	Size() int
	Type() string
	Close() error
}

// Result is a single vector search hit.
type Result struct {
	ID       int64
	Distance float64 // Euclidean (L2)
}
