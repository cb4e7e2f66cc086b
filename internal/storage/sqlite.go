package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/vector"
)

// SQLiteStore keeps track rows in SQLite and serves nearest-neighbor queries from an
// in-process vector index that is warmed from the table on open.
type SQLiteStore struct {
	db         *sql.DB
	index      vector.Index
	dimensions int
	logger     *zap.Logger
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and loads stored embeddings
// into a vector index. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, dimensions int, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, unavailable("create database directory", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, unavailable("open database", err)
	}
	// One connection: SQLite serializes writers, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, unavailable("enable WAL", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, unavailable("initialize schema", err)
	}

	index, err := vector.NewIndex(o.indexType, dimensions)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	s := &SQLiteStore{db: db, index: index, dimensions: dimensions, logger: o.logger}
	if err := s.warmIndex(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL CHECK (title <> ''),
		artist TEXT NOT NULL CHECK (artist <> ''),
		source TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_songs_title_artist ON songs(title, artist);
	`
	_, err := db.Exec(schema)
	return err
}

// warmIndex loads every stored embedding into the vector index.
func (s *SQLiteStore) warmIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM songs WHERE embedding IS NOT NULL`)
	if err != nil {
		return unavailable("load embeddings", err)
	}
	defer rows.Close()

	var ids []int64
	var vecs [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return unavailable("load embeddings", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("track %d: %w", id, err)
		}
		if err := models.CheckDimension(vec, s.dimensions); err != nil {
			return fmt.Errorf("track %d: stored embedding does not match configured dimensions: %w", id, err)
		}
		ids = append(ids, id)
		vecs = append(vecs, vec)
	}
	if err := rows.Err(); err != nil {
		return unavailable("load embeddings", err)
	}
	if err := s.index.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to warm vector index: %w", err)
	}
	s.logger.Debug("vector index warmed", zap.Int("tracks", len(ids)), zap.String("index", s.index.Type()))
	return nil
}

// InsertBatch validates all records, then inserts them in a single transaction.
// Assigned ids are written back to the records.
func (s *SQLiteStore) InsertBatch(ctx context.Context, records []*models.TrackRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := ValidateRecords(records, s.dimensions); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO songs (title, artist, source, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, unavailable("prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	ids := make([]int64, len(records))
	for i, rec := range records {
		res, err := stmt.ExecContext(ctx, rec.Title, rec.Artist, rec.Source, encodeVector(rec.Embedding), now)
		if err != nil {
			return nil, sqliteWriteError("insert track", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, unavailable("read inserted id", err)
		}
		ids[i] = id
	}
	if err := tx.Commit(); err != nil {
		return nil, sqliteWriteError("commit", err)
	}

	vecs := make([][]float32, len(records))
	for i, rec := range records {
		rec.ID = ids[i]
		rec.CreatedAt = now
		vecs[i] = rec.Embedding
	}
	// Dimensions were validated above, so the index cannot reject these.
	if err := s.index.Add(ctx, ids, vecs); err != nil {
		s.logger.Error("vector index update failed after commit", zap.Error(err))
	}
	return ids, nil
}

// sqliteWriteError reports rows the database itself rejected as constraint violations.
func sqliteWriteError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s: %v", models.ErrConstraintViolation, op, err)
	}
	return unavailable(op, err)
}

const selectColumns = `SELECT id, title, artist, source, embedding, created_at FROM songs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.TrackRecord, error) {
	var rec models.TrackRecord
	var blob []byte
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Artist, &rec.Source, &blob, &rec.CreatedAt); err != nil {
		return nil, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("track %d: %w", rec.ID, err)
	}
	rec.Embedding = vec
	return &rec, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]*models.TrackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query tracks", err)
	}
	defer rows.Close()

	var records []*models.TrackRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query tracks", err)
	}
	return records, nil
}

// GetByKey returns every record with the given title and artist, ordered by id.
func (s *SQLiteStore) GetByKey(ctx context.Context, title, artist string) ([]*models.TrackRecord, error) {
	return s.queryRecords(ctx, selectColumns+` WHERE title = ? AND artist = ? ORDER BY id`, title, artist)
}

// Get returns a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.TrackRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, unavailable("get track", err)
	}
	return rec, nil
}

// KNearest returns up to k records nearest to query, skipping excludeID.
func (s *SQLiteStore) KNearest(ctx context.Context, query []float32, k int, excludeID int64) ([]models.ScoredRecord, error) {
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
	hits, err := s.index.Search(ctx, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return []models.ScoredRecord{}, nil
	}

	ids := make([]any, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	records, err := s.queryRecords(ctx, selectColumns+` WHERE id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.TrackRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	scored := make([]models.ScoredRecord, 0, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.ID]
		if !ok {
			continue
		}
		scored = append(scored, models.ScoredRecord{Record: rec, Distance: h.Distance})
	}
	return dropExcluded(scored, k, excludeID), nil
}

// List returns records ordered by id.
func (s *SQLiteStore) List(ctx context.Context, offset, limit int) ([]*models.TrackRecord, error) {
	return s.queryRecords(ctx, selectColumns+` ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// Delete removes a record and its vector.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete track", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return s.index.Remove(ctx, []int64{id})
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&count); err != nil {
		return 0, unavailable("count tracks", err)
	}
	return count, nil
}

// Dimensions returns the embedding length enforced by the store.
func (s *SQLiteStore) Dimensions() int {
	return s.dimensions
}

// IndexType reports the vector index serving KNearest.
func (s *SQLiteStore) IndexType() string {
	return s.index.Type()
}

// Close releases the vector index and the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.index.Close(); err != nil {
		s.logger.Warn("failed to close vector index", zap.Error(err))
	}
	return s.db.Close()
}
