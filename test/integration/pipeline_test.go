// Package integration runs the ingestion pipeline and similarity queries end to end
// over real audio files, storage and indices.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/internal/embedding"
	"github.com/hyperjump/niteru/internal/ingest"
	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/similarity"
	"github.com/hyperjump/niteru/internal/source"
	"github.com/hyperjump/niteru/internal/storage"
	"github.com/hyperjump/niteru/internal/watcher"
)

const (
	sampleRate = 8000
	dims       = 8
)

// writeTone writes one second of constant-amplitude mono audio.
func writeTone(t *testing.T, path string, amplitude int) {
	t.Helper()
	data := make([]int, sampleRate)
	for i := range data {
		// alternate sign so the clip is not a DC offset
		if i%2 == 0 {
			data[i] = amplitude
		} else {
			data[i] = -amplitude
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

type pipeline struct {
	store       *storage.SQLiteStore
	tracks      *keyword.BleveIndex
	coordinator *ingest.Coordinator
	engine      *similarity.Engine
}

func newPipeline(t *testing.T, dbPath string) *pipeline {
	t.Helper()
	store, err := storage.NewSQLiteStore(dbPath, dims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracks, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracks.Close() })

	resolver := &source.Auto{Local: &source.Local{}}
	worker := ingest.NewWorker(resolver, resolver,
		&audio.FileDecoder{SampleRate: sampleRate},
		embedding.NewMockEmbedder(dims),
		ingest.WithCache(embedding.NewEmbeddingCache(16)))
	return &pipeline{
		store:       store,
		tracks:      tracks,
		coordinator: ingest.NewCoordinator(worker, store, ingest.WithTrackIndex(tracks)),
		engine: similarity.NewEngine(store, tracks,
			&config.SearchConfig{DefaultK: 5, MaxK: 50, Ambiguity: config.AmbiguityFirst}, nil),
	}
}

func neighborTitles(resp *models.SimilarResponse) []string {
	out := make([]string, len(resp.Neighbors))
	for i, n := range resp.Neighbors {
		out[i] = n.Title
	}
	return out
}

func TestIntegration_IngestAndFindSimilar(t *testing.T) {
	inbox := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "tracks.db")
	writeTone(t, filepath.Join(inbox, "Artist X - Loud.wav"), 16384)
	writeTone(t, filepath.Join(inbox, "Artist X - Louder.wav"), 18000)
	writeTone(t, filepath.Join(inbox, "Artist Y - Quiet.wav"), 1600)
	writeTone(t, filepath.Join(inbox, "Artist Z - Silence.wav"), 0)

	p := newPipeline(t, dbPath)
	ctx := context.Background()

	result, err := p.coordinator.IngestBatch(ctx, []models.TrackQuery{
		{Path: filepath.Join(inbox, "Artist X - Loud.wav")},
		{Path: filepath.Join(inbox, "Artist X - Louder.wav")},
		{Artist: "Nobody", Title: "Remote Only"},
		{Path: filepath.Join(inbox, "Artist Y - Quiet.wav")},
		{Path: filepath.Join(inbox, "Artist Z - Silence.wav")},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Inserted)
	require.Len(t, result.Failures, 2)
	require.Equal(t, "SourceResolutionFailed", result.Failures[0].Reason)
	require.Equal(t, "DecodeFailed", result.Failures[1].Reason)

	count, err := p.store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	resp, err := p.engine.FindSimilar(ctx, &models.SimilarQuery{Artist: "Artist X", Title: "Loud", K: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"Louder", "Quiet"}, neighborTitles(resp))

	again, err := p.engine.FindSimilar(ctx, &models.SimilarQuery{Artist: "Artist X", Title: "Loud", K: 2})
	require.NoError(t, err)
	require.Equal(t, resp.Neighbors, again.Neighbors)

	_, err = p.engine.FindSimilar(ctx, &models.SimilarQuery{Artist: "Artist Z", Title: "Silence"})
	require.ErrorIs(t, err, models.ErrNotFound)

	hits, err := p.tracks.Search(ctx, "quiet", 5, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Artist Y", hits[0].Artist)

	// reopened store serves the same neighbors from the persisted embeddings
	require.NoError(t, p.store.Close())
	reopened := newPipeline(t, dbPath)
	resp, err = reopened.engine.FindSimilar(ctx, &models.SimilarQuery{Artist: "Artist X", Title: "Loud", K: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"Louder", "Quiet"}, neighborTitles(resp))
}

func TestIntegration_WatcherInbox(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, ":memory:")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan *models.IngestResult, 4)
	inbox := watcher.NewInbox(ctx, p.coordinator,
		watcher.WithWindow(100*time.Millisecond),
		watcher.WithResultHook(func(r *models.IngestResult, err error) {
			if err == nil {
				batches <- r
			}
		}))
	w := watcher.NewWatcher([]string{dir}, []string{".wav"}, true, inbox.Add, watcher.WithSettle(100*time.Millisecond))
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// write outside the inbox and move in so the watcher never sees a partial file
	staging := t.TempDir()
	for _, name := range []string{"Band - One.wav", "Band - Two.wav"} {
		writeTone(t, filepath.Join(staging, name), 12000)
		require.NoError(t, os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)))
	}

	inserted := 0
	deadline := time.After(5 * time.Second)
	for inserted < 2 {
		select {
		case r := <-batches:
			inserted += r.Inserted
		case <-deadline:
			t.Fatalf("timed out waiting for inbox ingestion, inserted %d", inserted)
		}
	}

	matches, err := p.store.GetByKey(ctx, "One", "Band")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, filepath.Join(dir, "Band - One.wav"), matches[0].Source)
}
