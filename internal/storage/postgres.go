package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/models"
)

// PostgresStore keeps tracks in a pgvector table and delegates nearest-neighbor ordering
// to the database's L2 distance operator.
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *zap.Logger
}

// NewPostgresStore connects to databaseURL, retrying transient failures, and ensures the schema.
func NewPostgresStore(ctx context.Context, databaseURL string, dimensions int, opts ...Option) (*PostgresStore, error) {
	o := buildOptions(opts)
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	var pool *pgxpool.Pool
	b := retry.NewFibonacci(500 * time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(4, b), func(ctx context.Context) error {
		p, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			// A malformed URL will not get better.
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			o.logger.Warn("postgres not reachable, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, unavailable("connect", err)
	}

	s := &PostgresStore{pool: pool, dimensions: dimensions, logger: o.logger}
	if err := s.initSchema(ctx, o.hnsw); err != nil {
		pool.Close()
		return nil, unavailable("initialize schema", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context, hnsw bool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS songs (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL CHECK (title <> ''),
			artist TEXT NOT NULL CHECK (artist <> ''),
			source TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_songs_title_artist ON songs (title, artist)`,
	}
	if hnsw {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_songs_embedding_hnsw ON songs USING hnsw (embedding vector_l2_ops)`)
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertBatch inserts all records in one transaction.
func (s *PostgresStore) InsertBatch(ctx context.Context, records []*models.TrackRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := ValidateRecords(records, s.dimensions); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(
			`INSERT INTO songs (title, artist, source, embedding) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
			rec.Title, rec.Artist, rec.Source, pgvector.NewVector(rec.Embedding),
		)
	}
	results := tx.SendBatch(ctx, batch)
	ids := make([]int64, len(records))
	created := make([]time.Time, len(records))
	for i := range records {
		if err := results.QueryRow().Scan(&ids[i], &created[i]); err != nil {
			_ = results.Close()
			return nil, pgWriteError("insert track", err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, pgWriteError("insert batch", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pgWriteError("commit", err)
	}

	for i, rec := range records {
		rec.ID = ids[i]
		rec.CreatedAt = created[i]
	}
	return ids, nil
}

// pgWriteError maps integrity (class 23) and data (class 22) errors, such as a vector of
// the wrong dimension, to constraint violations.
func pgWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "22")) {
		return fmt.Errorf("%w: %s: %v", models.ErrConstraintViolation, op, err)
	}
	return unavailable(op, err)
}

const pgSelectColumns = `SELECT id, title, artist, source, embedding, created_at FROM songs`

func scanPGRecord(row pgx.Row) (*models.TrackRecord, error) {
	var rec models.TrackRecord
	var vec *pgvector.Vector
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Artist, &rec.Source, &vec, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if vec != nil {
		rec.Embedding = vec.Slice()
	}
	return &rec, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]*models.TrackRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query tracks", err)
	}
	defer rows.Close()

	var records []*models.TrackRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, unavailable("scan track", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query tracks", err)
	}
	return records, nil
}

// GetByKey returns every record with the given title and artist, ordered by id.
func (s *PostgresStore) GetByKey(ctx context.Context, title, artist string) ([]*models.TrackRecord, error) {
	return s.queryRecords(ctx, pgSelectColumns+` WHERE title = $1 AND artist = $2 ORDER BY id`, title, artist)
}

// Get returns a record by id.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.TrackRecord, error) {
	rec, err := scanPGRecord(s.pool.QueryRow(ctx, pgSelectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, unavailable("get track", err)
	}
	return rec, nil
}

// KNearest orders by embedding <-> query, then id, in the database.
func (s *PostgresStore) KNearest(ctx context.Context, query []float32, k int, excludeID int64) ([]models.ScoredRecord, error) {
	if err := models.CheckDimension(query, s.dimensions); err != nil {
		return nil, err
	}
	if err := checkK(k); err != nil {
		return nil, err
	}

	fetch := k
	if excludeID != 0 {
		fetch++
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, artist, source, embedding, created_at, embedding <-> $1 AS distance
		 FROM songs WHERE embedding IS NOT NULL
		 ORDER BY embedding <-> $1, id LIMIT $2`,
		pgvector.NewVector(query), fetch,
	)
	if err != nil {
		return nil, unavailable("nearest query", err)
	}
	defer rows.Close()

	var scored []models.ScoredRecord
	for rows.Next() {
		var rec models.TrackRecord
		var vec *pgvector.Vector
		var distance float64
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Artist, &rec.Source, &vec, &rec.CreatedAt, &distance); err != nil {
			return nil, unavailable("scan neighbor", err)
		}
		if vec != nil {
			rec.Embedding = vec.Slice()
		}
		scored = append(scored, models.ScoredRecord{Record: &rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("nearest query", err)
	}
	return dropExcluded(scored, k, excludeID), nil
}

// List returns records ordered by id.
func (s *PostgresStore) List(ctx context.Context, offset, limit int) ([]*models.TrackRecord, error) {
	return s.queryRecords(ctx, pgSelectColumns+` ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
}

// Delete removes a record.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM songs WHERE id = $1`, id)
	if err != nil {
		return unavailable("delete track", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// Count returns the number of stored records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM songs`).Scan(&count); err != nil {
		return 0, unavailable("count tracks", err)
	}
	return count, nil
}

// Dimensions returns the embedding length enforced by the store.
func (s *PostgresStore) Dimensions() int {
	return s.dimensions
}

// IndexType reports how nearest-neighbor ordering is served.
func (s *PostgresStore) IndexType() string {
	return "pgvector"
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
