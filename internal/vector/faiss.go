//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"math"
	"sync"
	"unsafe"
)

// FAISSIndex is a vector index backed by a FAISS IndexFlatL2. Track IDs are mapped to
// sequential FAISS labels; removed tracks stay in the FAISS index and are filtered on search.
type FAISSIndex struct {
	index      *C.FaissIndexFlatL2
	dimensions int
	labelOf    map[int64]int64 // track ID -> FAISS label
	idOf       map[int64]int64 // FAISS label -> track ID
	nextLabel  int64
	removed    int
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS flat L2 index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	var index *C.FaissIndexFlatL2
	ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions))
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}

	return &FAISSIndex{
		index:      index,
		dimensions: dimensions,
		labelOf:    make(map[int64]int64),
		idOf:       make(map[int64]int64),
	}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors with the given IDs. Re-adding an ID supersedes its previous vector.
func (f *FAISSIndex) Add(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(vectors)
	flat := make([]float32, n*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}

	ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}

	for _, id := range ids {
		if old, ok := f.labelOf[id]; ok {
			delete(f.idOf, old)
			f.removed++
		}
		f.labelOf[id] = f.nextLabel
		f.idOf[f.nextLabel] = id
		f.nextLabel++
	}
	return nil
}

// Search returns the k nearest vectors by L2 distance.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return nil, nil
	}

	// Over-fetch by the number of dead labels so removals cannot shrink the result.
	fetch := k + f.removed
	if fetch > ntotal {
		fetch = ntotal
	}
	distances := make([]float32, fetch)
	labels := make([]int64, fetch)

	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(fetch),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]*Result, 0, k)
	for i := 0; i < fetch; i++ {
		id, ok := f.idOf[labels[i]]
		if labels[i] < 0 || !ok {
			continue
		}
		// IndexFlatL2 reports squared distances.
		results = append(results, &Result{ID: id, Distance: math.Sqrt(float64(distances[i]))})
	}
	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Remove drops IDs from the label mapping. IndexFlat has no efficient removal, so the
// vectors stay in FAISS until the index is rebuilt.
func (f *FAISSIndex) Remove(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		if label, ok := f.labelOf[id]; ok {
			delete(f.idOf, label)
			delete(f.labelOf, id)
			f.removed++
		}
	}
	return nil
}

// Size returns the number of live vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.labelOf)
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
