package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/similarity"
	"github.com/hyperjump/niteru/internal/storage"
)

type fakeIngester struct {
	got    []models.TrackQuery
	result *models.IngestResult
	err    error
}

func (f *fakeIngester) IngestBatch(_ context.Context, queries []models.TrackQuery) (*models.IngestResult, error) {
	f.got = queries
	return f.result, f.err
}

type fakeWatch []string

func (f fakeWatch) Directories() []string { return f }

type testEnv struct {
	handler  http.Handler
	store    *storage.SQLiteStore
	tracks   *keyword.BleveIndex
	ingester *fakeIngester
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(":memory:", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	records := []*models.TrackRecord{
		{Title: "Song A", Artist: "Artist X", Embedding: []float32{0, 0, 0, 0}},
		{Title: "Song B", Artist: "Artist X", Embedding: []float32{0.1, 0, 0, 0}},
		{Title: "Song C", Artist: "Artist Y", Embedding: []float32{5, 5, 5, 5}},
	}
	_, err = store.InsertBatch(ctx, records)
	require.NoError(t, err)

	tracks, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracks.Close() })
	require.NoError(t, tracks.Index(ctx, records))

	ing := &fakeIngester{result: &models.IngestResult{Inserted: 1, IDs: []int64{4}, Failures: []models.IngestFailure{}}}
	engine := similarity.NewEngine(store, tracks, &config.SearchConfig{DefaultK: 5, MaxK: 50, Ambiguity: config.AmbiguityFirst}, nil)
	srv := NewServer(engine, ing, store,
		&config.ServerConfig{Host: "localhost", Port: 8000, CORSOrigins: []string{"http://localhost:3000"}},
		zap.NewNop(),
		WithTrackIndex(tracks),
		WithWatch(fakeWatch{"/srv/inbox"}))
	return &testEnv{handler: srv.Handler(), store: store, tracks: tracks, ingester: ing}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/search", map[string]interface{}{"artist": "Artist X", "title": "Song A", "k": 2})
	require.Equal(t, http.StatusOK, w.Code)

	var out searchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Equal(t, "success", out.Status)
	require.Equal(t, trackKey{Title: "Song A", Artist: "Artist X"}, out.Query)
	require.Len(t, out.Songs, 2)
	require.Equal(t, int64(2), out.Songs[0].ID)
	require.Equal(t, int64(3), out.Songs[1].ID)
}

func TestHandleSearch_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/search", map[string]string{"artist": "", "title": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/search", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/search", map[string]string{"artist": "NonexistentArtist123", "title": "NonexistentSong456"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NotFound", decode(t, w)["kind"])

	w = env.do(t, http.MethodPost, "/api/search", map[string]string{"artist": "Artist X", "title": "Song"})
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	require.NotEmpty(t, body["suggestions"])
}

func TestHandleSimilarVector(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/similar/vector", vectorRequest{Vector: []float32{5, 5, 5, 4.9}, K: 1})
	require.Equal(t, http.StatusOK, w.Code)
	songs := decode(t, w)["songs"].([]interface{})
	require.Len(t, songs, 1)
	require.Equal(t, float64(3), songs[0].(map[string]interface{})["id"])

	w = env.do(t, http.MethodPost, "/api/similar/vector", vectorRequest{Vector: []float32{1, 2}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "DimensionMismatch", decode(t, w)["kind"])

	w = env.do(t, http.MethodPost, "/api/similar/vector", vectorRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIngest(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/ingest", ingestRequest{Tracks: []models.TrackQuery{
		{Artist: "Queen", Title: "Under Pressure", Path: "/etc/passwd"},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode(t, w)["inserted"])
	require.Len(t, env.ingester.got, 1)
	require.Empty(t, env.ingester.got[0].Path)

	w = env.do(t, http.MethodPost, "/api/ingest", ingestRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	env.ingester.err = fmt.Errorf("%w: %w", models.ErrCommitFailed, models.ErrStorageUnavailable)
	w = env.do(t, http.MethodPost, "/api/ingest", ingestRequest{Tracks: []models.TrackQuery{{Artist: "a", Title: "b"}}})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "CommitFailed", decode(t, w)["kind"])
}

func TestHandleTracks(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/tracks?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Len(t, body["tracks"], 2)
	require.Equal(t, float64(3), body["total"])

	w = env.do(t, http.MethodGet, "/api/tracks?q=y", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hits := decode(t, w)["tracks"].([]interface{})
	require.Len(t, hits, 1)
	require.Equal(t, "Song C", hits[0].(map[string]interface{})["title"])

	w = env.do(t, http.MethodGet, "/api/tracks/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	require.Equal(t, true, body["has_embedding"])
	require.Equal(t, "Song B", body["track"].(map[string]interface{})["title"])

	w = env.do(t, http.MethodGet, "/api/tracks/99", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/tracks/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeleteTrack(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodDelete, "/api/tracks/2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	docs, err := env.tracks.DocCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), docs)

	w = env.do(t, http.MethodPost, "/api/search", map[string]interface{}{"artist": "Artist X", "title": "Song A", "k": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var out searchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Equal(t, int64(3), out.Songs[0].ID)
}

func TestHandleHealthHelloStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", decode(t, w)["status"])

	w = env.do(t, http.MethodGet, "/api/hello", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, decode(t, w)["message"], "Hello")

	w = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, float64(3), body["tracks"])
	require.Equal(t, float64(4), body["dimensions"])
	require.Equal(t, "memory", body["index_type"])
	require.Equal(t, float64(3), body["text_index_docs"])
	require.Equal(t, []interface{}{"/srv/inbox"}, body["watch_directories"])
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidQuery, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrAmbiguousKey, http.StatusConflict},
		{models.ErrMissingEmbedding, http.StatusUnprocessableEntity},
		{&models.DimensionError{Expected: 4, Actual: 2}, http.StatusBadRequest},
		{models.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
