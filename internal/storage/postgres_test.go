package storage

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/niteru/internal/models"
)

// Runs against a real pgvector database when NITERU_TEST_DATABASE_URL is set.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("NITERU_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NITERU_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url, testDim, WithHNSW(true))
	require.NoError(t, err)
	_, err = store.pool.Exec(ctx, `TRUNCATE songs RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStore_KNearest(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()
	ids := seedABC(t, store)

	results, err := store.KNearest(ctx, []float32{0, 0, 0, 0}, 2, ids[0])
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, ids[1], results[0].Record.ID)
	require.Equal(t, ids[2], results[1].Record.ID)

	_, err = store.KNearest(ctx, []float32{0}, 2, 0)
	require.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestPostgresStore_InsertBatchRejectsWrongDimension(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()
	seedABC(t, store)

	_, err := store.InsertBatch(ctx, []*models.TrackRecord{track("Bad", "Artist", 1)})
	require.ErrorIs(t, err, models.ErrConstraintViolation)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	matches, err := store.GetByKey(ctx, "Song A", "Artist X")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestNewPostgresStore_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("retries take a few seconds")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPostgresStore(ctx, "postgres://niteru@127.0.0.1:1/niteru?connect_timeout=1", testDim)
	require.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestPGWriteError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"23514", models.ErrConstraintViolation}, // check_violation
		{"23502", models.ErrConstraintViolation}, // not_null_violation
		{"22000", models.ErrConstraintViolation}, // pgvector dimension mismatch
		{"08006", models.ErrStorageUnavailable},  // connection_failure
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code, Message: "rejected"})
			require.ErrorIs(t, pgWriteError("insert track", err), tt.want)
		})
	}
	require.ErrorIs(t, pgWriteError("commit", context.DeadlineExceeded), models.ErrStorageUnavailable)
}
