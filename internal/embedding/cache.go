package embedding

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/niteru/internal/models"
)

// Cache stores embeddings by track key.
type Cache interface {
	Get(key string) ([]float32, bool)
	Set(key string, value []float32)
}

// TrackKey returns a stable cache key for a track query. Local files are keyed by their
// cleaned path plus size and modification time, so a replaced file misses; everything
// else by case-folded artist and title.
func TrackKey(q models.TrackQuery) string {
	var raw string
	if q.Path != "" {
		raw = "file:" + filepath.Clean(q.Path)
		if info, err := os.Stat(q.Path); err == nil {
			raw += fmt.Sprintf("\x00%d\x00%d", info.Size(), info.ModTime().UnixNano())
		}
	} else {
		raw = "track:" + strings.ToLower(strings.TrimSpace(q.Artist)) + "\x00" + strings.ToLower(strings.TrimSpace(q.Title))
	}
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:])
}

// EmbeddingCache is an LRU cache for embeddings.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Tiered checks the in-memory cache before a persistent one and fills it on a persistent hit.
type Tiered struct {
	Memory     *EmbeddingCache
	Persistent Cache
}

// Get implements Cache.
func (t *Tiered) Get(key string) ([]float32, bool) {
	if v, ok := t.Memory.Get(key); ok {
		return v, true
	}
	if t.Persistent == nil {
		return nil, false
	}
	v, ok := t.Persistent.Get(key)
	if ok {
		t.Memory.Set(key, v)
	}
	return v, ok
}

// Set implements Cache.
func (t *Tiered) Set(key string, value []float32) {
	t.Memory.Set(key, value)
	if t.Persistent != nil {
		t.Persistent.Set(key, value)
	}
}
