package embedding

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/niteru/internal/models"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	v, ok := c.Get("a")
	require.False(t, ok)
	require.Nil(t, v)

	c.Set("a", []float32{1, 2, 3})
	v, ok = c.Get("a")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, v)

	c.Set("b", []float32{4, 5})
	// Touch a so b becomes the eviction candidate.
	_, _ = c.Get("a")
	c.Set("c", []float32{6})
	_, ok = c.Get("b")
	require.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, c.Len())
}

func TestTrackKey(t *testing.T) {
	a := TrackKey(models.TrackQuery{Artist: "Artist X", Title: "Song A"})
	b := TrackKey(models.TrackQuery{Artist: " artist x", Title: "SONG A "})
	require.Equal(t, a, b, "keys are case and whitespace insensitive")
	require.Len(t, a, 64)

	require.NotEqual(t, a, TrackKey(models.TrackQuery{Artist: "Artist X", Title: "Song B"}))
	require.NotEqual(t,
		TrackKey(models.TrackQuery{Artist: "ab", Title: "c"}),
		TrackKey(models.TrackQuery{Artist: "a", Title: "bc"}))

	require.Equal(t,
		TrackKey(models.TrackQuery{Path: "/music/inbox/./a.wav"}),
		TrackKey(models.TrackQuery{Path: "/music/inbox/a.wav"}))
}

func TestTrackKey_ReplacedFileMisses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Band - One.wav")
	q := models.TrackQuery{Path: path}

	require.NoError(t, os.WriteFile(path, []byte("first take"), 0644))
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, old, old))
	before := TrackKey(q)
	require.Equal(t, before, TrackKey(q), "unchanged file keeps its key")

	require.NoError(t, os.WriteFile(path, []byte("second, longer take"), 0644))
	require.NotEqual(t, before, TrackKey(q))

	// same size, newer mtime
	require.NoError(t, os.WriteFile(path, []byte("first take"), 0644))
	newer := old.Add(time.Hour)
	require.NoError(t, os.Chtimes(path, newer, newer))
	require.NotEqual(t, before, TrackKey(q))
}

func TestBadgerCache(t *testing.T) {
	dir := t.TempDir()
	c, err := NewBadgerCache(dir, nil)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("k", []float32{0.5, -1, 2})
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, []float32{0.5, -1, 2}, v)
	require.NoError(t, c.Close())

	c, err = NewBadgerCache(dir, nil)
	require.NoError(t, err)
	defer c.Close()
	v, ok = c.Get("k")
	require.True(t, ok, "entries survive reopen")
	require.Equal(t, []float32{0.5, -1, 2}, v)
}

func TestTiered(t *testing.T) {
	persistent, err := NewBadgerCache("", nil)
	require.NoError(t, err)
	defer persistent.Close()

	persistent.Set("warm", []float32{1})
	tiered := &Tiered{Memory: NewEmbeddingCache(4), Persistent: persistent}

	v, ok := tiered.Get("warm")
	require.True(t, ok)
	require.Equal(t, []float32{1}, v)
	require.Equal(t, 1, tiered.Memory.Len(), "persistent hit fills the memory tier")

	tiered.Set("new", []float32{2})
	v, ok = persistent.Get("new")
	require.True(t, ok)
	require.Equal(t, []float32{2}, v)
}
