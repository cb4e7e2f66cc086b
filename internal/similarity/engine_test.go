package similarity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/storage"
)

const testDim = 4

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insert(t *testing.T, store storage.VectorStore, records ...*models.TrackRecord) []int64 {
	t.Helper()
	ids, err := store.InsertBatch(context.Background(), records)
	require.NoError(t, err)
	return ids
}

func track(title, artist string, vec ...float32) *models.TrackRecord {
	return &models.TrackRecord{Title: title, Artist: artist, Embedding: vec}
}

func seedABC(t *testing.T, store storage.VectorStore) {
	t.Helper()
	insert(t, store,
		track("Song A", "Artist X", 0, 0, 0, 0),
		track("Song B", "Artist X", 0.1, 0, 0, 0),
		track("Song C", "Artist Y", 5, 5, 5, 5),
	)
}

func ids(neighbors []models.Neighbor) []int64 {
	out := make([]int64, len(neighbors))
	for i, n := range neighbors {
		out[i] = n.ID
	}
	return out
}

func TestFindSimilar_ByKey(t *testing.T) {
	store := newStore(t)
	seedABC(t, store)
	engine := NewEngine(store, nil, nil, nil)

	resp, err := engine.FindSimilar(context.Background(), &models.SimilarQuery{Title: "Song A", Artist: "Artist X", K: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, ids(resp.Neighbors))
	require.Equal(t, "Song B", resp.Neighbors[0].Title)
	require.InDelta(t, 0.1, resp.Neighbors[0].Distance, 1e-6)
	require.Less(t, resp.Neighbors[0].Distance, resp.Neighbors[1].Distance)
	require.NotNil(t, resp.Query)
	require.Equal(t, int64(1), resp.Query.ID)
}

func TestFindSimilar_TrimsKey(t *testing.T) {
	store := newStore(t)
	seedABC(t, store)
	engine := NewEngine(store, nil, nil, nil)

	resp, err := engine.FindSimilar(context.Background(), &models.SimilarQuery{Title: "  Song A ", Artist: "Artist X  ", K: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{2}, ids(resp.Neighbors))
}

func TestFindSimilar_DefaultK(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 8; i++ {
		insert(t, store, track("Song", "Artist", float32(i), 0, 0, 0))
	}
	engine := NewEngine(store, nil, &config.SearchConfig{DefaultK: 5, MaxK: 6, Ambiguity: config.AmbiguityFirst}, nil)
	ctx := context.Background()

	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{ID: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4, 5, 6}, ids(resp.Neighbors))

	resp, err = engine.FindSimilar(ctx, &models.SimilarQuery{ID: 1, K: 100})
	require.NoError(t, err)
	require.Len(t, resp.Neighbors, 6)
}

func TestFindSimilar_NeverIncludesSelf(t *testing.T) {
	store := newStore(t)
	// identical vectors: self must be removed by id, not by value
	insert(t, store,
		track("One", "Same", 1, 1, 1, 1),
		track("Two", "Same", 1, 1, 1, 1),
		track("Three", "Same", 1, 1, 1, 1),
	)
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{ID: id, K: 5})
		require.NoError(t, err)
		require.Len(t, resp.Neighbors, 2)
		require.NotContains(t, ids(resp.Neighbors), id)
		require.Less(t, resp.Neighbors[0].ID, resp.Neighbors[1].ID)
	}
}

func TestFindSimilar_Idempotent(t *testing.T) {
	store := newStore(t)
	seedABC(t, store)
	insert(t, store, track("Song D", "Artist Z", 0.1, 0, 0, 0), track("Song E", "Artist Z", 0, 0.1, 0, 0))
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	first, err := engine.FindSimilar(ctx, &models.SimilarQuery{Title: "Song A", Artist: "Artist X", K: 4})
	require.NoError(t, err)
	second, err := engine.FindSimilar(ctx, &models.SimilarQuery{Title: "Song A", Artist: "Artist X", K: 4})
	require.NoError(t, err)
	require.Equal(t, first.Neighbors, second.Neighbors)
	// B, D and E tie at 0.1; ids break the tie
	require.Equal(t, []int64{2, 4, 5, 3}, ids(first.Neighbors))
}

func TestFindSimilar_EmptyResult(t *testing.T) {
	store := newStore(t)
	insert(t, store, track("Alone", "Solo", 1, 2, 3, 4))
	engine := NewEngine(store, nil, nil, nil)

	resp, err := engine.FindSimilar(context.Background(), &models.SimilarQuery{Title: "Alone", Artist: "Solo"})
	require.NoError(t, err)
	require.NotNil(t, resp.Neighbors)
	require.Empty(t, resp.Neighbors)
}

func TestFindSimilar_NotFound(t *testing.T) {
	store := newStore(t)
	seedABC(t, store)
	engine := NewEngine(store, nil, nil, nil)

	_, err := engine.FindSimilar(context.Background(), &models.SimilarQuery{Title: "Unknown", Artist: "Nobody"})
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Equal(t, "NotFound", models.Kind(err))

	_, err = engine.FindSimilar(context.Background(), &models.SimilarQuery{ID: 99})
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestFindSimilar_NotFoundSuggestions(t *testing.T) {
	store := newStore(t)
	insert(t, store,
		track("Bohemian Rhapsody", "Queen", 0, 0, 0, 1),
		track("Karma Police", "Radiohead", 0, 0, 1, 0),
	)
	idx, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	records, err := store.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), records))

	engine := NewEngine(store, idx, nil, nil)
	_, err = engine.FindSimilar(context.Background(), &models.SimilarQuery{Title: "Bohemian Rapsody", Artist: "Queen"})
	require.ErrorIs(t, err, models.ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.NotEmpty(t, nf.Suggestions)
	require.Equal(t, int64(1), nf.Suggestions[0].ID)
	require.Contains(t, err.Error(), "did you mean")
}

// legacyStore serves a record imported before embeddings were computed.
type legacyStore struct {
	storage.VectorStore
}

func (legacyStore) GetByKey(_ context.Context, title, artist string) ([]*models.TrackRecord, error) {
	return []*models.TrackRecord{{ID: 42, Title: title, Artist: artist}}, nil
}

func TestFindSimilar_MissingEmbedding(t *testing.T) {
	store := newStore(t)
	seedABC(t, store)
	engine := NewEngine(legacyStore{store}, nil, nil, nil)

	_, err := engine.FindSimilar(context.Background(), &models.SimilarQuery{Title: "Bare", Artist: "Nobody"})
	require.ErrorIs(t, err, models.ErrMissingEmbedding)
	require.Equal(t, "MissingEmbedding", models.Kind(err))
}

func TestFindSimilar_Ambiguity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	insert(t, store,
		track("Intro", "Band", 0, 0, 0, 0),
		track("Intro", "Band", 3, 0, 0, 0),
		track("Outro", "Band", 1, 0, 0, 0),
	)

	first := NewEngine(store, nil, &config.SearchConfig{DefaultK: 5, MaxK: 50, Ambiguity: config.AmbiguityFirst}, nil)
	resp, err := first.FindSimilar(ctx, &models.SimilarQuery{Title: "Intro", Artist: "Band", K: 2})
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.Query.ID)
	require.Equal(t, []int64{3, 2}, ids(resp.Neighbors))

	strict := NewEngine(store, nil, &config.SearchConfig{DefaultK: 5, MaxK: 50, Ambiguity: config.AmbiguityError}, nil)
	_, err = strict.FindSimilar(ctx, &models.SimilarQuery{Title: "Intro", Artist: "Band"})
	require.ErrorIs(t, err, models.ErrAmbiguousKey)
	require.Contains(t, err.Error(), "1, 2")

	// an id always disambiguates
	resp, err = strict.FindSimilar(ctx, &models.SimilarQuery{ID: 2, K: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{3}, ids(resp.Neighbors))
}

func TestFindSimilar_ByVector(t *testing.T) {
	store := newStore(t)
	seedABC(t, store)
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{Vector: []float32{0, 0, 0, 0}, K: 2})
	require.NoError(t, err)
	require.Nil(t, resp.Query)
	// vector queries exclude nothing
	require.Equal(t, []int64{1, 2}, ids(resp.Neighbors))
	require.Zero(t, resp.Neighbors[0].Distance)

	_, err = engine.FindSimilar(ctx, &models.SimilarQuery{Vector: []float32{1, 2}})
	require.ErrorIs(t, err, models.ErrDimensionMismatch)
	require.Equal(t, "DimensionMismatch", models.Kind(err))
}

func TestFindSimilar_InvalidQuery(t *testing.T) {
	engine := NewEngine(newStore(t), nil, nil, nil)
	ctx := context.Background()

	_, err := engine.FindSimilar(ctx, &models.SimilarQuery{Artist: "Only Artist"})
	require.ErrorIs(t, err, models.ErrInvalidQuery)

	_, err = engine.FindSimilar(ctx, &models.SimilarQuery{Title: "T", Artist: "A", K: -1})
	require.ErrorIs(t, err, models.ErrInvalidQuery)
}
