package models

import (
	"errors"
	"fmt"
)

// Stable error kinds. Callers match with errors.Is; Kind returns the name.
var (
	ErrSourceResolutionFailed = errors.New("source resolution failed")
	ErrFetchFailed            = errors.New("fetch failed")
	ErrDecodeFailed           = errors.New("decode failed")
	ErrEmbeddingFailed        = errors.New("embedding failed")
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrConstraintViolation    = errors.New("constraint violation")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrCommitFailed           = errors.New("commit failed")
	ErrNotFound               = errors.New("not found")
	ErrMissingEmbedding       = errors.New("missing embedding")
	ErrAmbiguousKey           = errors.New("ambiguous key")
	ErrInvalidQuery           = errors.New("invalid query")
)

var kinds = []struct {
	err  error
	name string
}{
	// CommitFailed wraps store errors, so it is checked first.
	{ErrCommitFailed, "CommitFailed"},
	{ErrSourceResolutionFailed, "SourceResolutionFailed"},
	{ErrFetchFailed, "FetchFailed"},
	{ErrDecodeFailed, "DecodeFailed"},
	{ErrEmbeddingFailed, "EmbeddingFailed"},
	{ErrDimensionMismatch, "DimensionMismatch"},
	{ErrConstraintViolation, "ConstraintViolation"},
	{ErrStorageUnavailable, "StorageUnavailable"},
	{ErrNotFound, "NotFound"},
	{ErrMissingEmbedding, "MissingEmbedding"},
	{ErrAmbiguousKey, "AmbiguousKey"},
	{ErrInvalidQuery, "InvalidQuery"},
}

// Kind returns the stable kind name of err ("NotFound", "CommitFailed", ...),
// "Internal" for unclassified errors and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// DimensionError reports a vector whose length differs from the store dimension.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// CheckDimension returns a *DimensionError when len(v) != dim.
func CheckDimension(v []float32, dim int) error {
	if len(v) != dim {
		return &DimensionError{Expected: dim, Actual: len(v)}
	}
	return nil
}
