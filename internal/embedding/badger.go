package embedding

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// BadgerCache persists embeddings across runs in a Badger key-value store.
type BadgerCache struct {
	db     *badger.DB
	logger *zap.Logger
}

type cachedEmbedding struct {
	Vector   []float32 `msgpack:"v"`
	StoredAt int64     `msgpack:"t"`
}

// NewBadgerCache opens a cache in dir. An empty dir runs Badger in memory.
func NewBadgerCache(dir string, logger *zap.Logger) (*BadgerCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.Sugar()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &BadgerCache{db: db, logger: logger}, nil
}

// Get returns the cached embedding for key. Read errors count as a miss.
func (c *BadgerCache) Get(key string) ([]float32, bool) {
	var entry cachedEmbedding
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return entry.Vector, true
}

// Set stores the embedding for key. Write errors are logged and dropped.
func (c *BadgerCache) Set(key string, value []float32) {
	data, err := msgpack.Marshal(cachedEmbedding{Vector: value, StoredAt: time.Now().Unix()})
	if err != nil {
		c.logger.Warn("embedding cache encode failed", zap.Error(err))
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Close flushes and closes the store.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// badgerLogger routes Badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }
