package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/internal/embedding"
	"github.com/hyperjump/niteru/internal/ingest"
	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/similarity"
	"github.com/hyperjump/niteru/internal/source"
	"github.com/hyperjump/niteru/internal/storage"
)

const defaultConfigPath = "/usr/local/etc/niteru/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml in the current
// directory wins; when neither exists, environment and defaults are used.
// Returns the config and the path that was loaded ("" when none).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := config.Default()
			return cfg, "", cfg.Validate()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds the wired application services.
type Components struct {
	Store       storage.VectorStore
	Embedder    embedding.Embedder
	Tracks      *keyword.BleveIndex
	Engine      *similarity.Engine
	Coordinator *ingest.Coordinator

	persistentCache *embedding.BadgerCache
}

// Close releases every component.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Tracks != nil {
		_ = c.Tracks.Close()
	}
	if c.persistentCache != nil {
		_ = c.persistentCache.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.VectorStore, error) {
	opts := []storage.Option{
		storage.WithLogger(logger),
		storage.WithIndexType(cfg.Storage.IndexType),
		storage.WithHNSW(cfg.Storage.HNSW),
	}
	if cfg.Storage.Driver == "postgres" {
		return storage.NewPostgresStore(ctx, cfg.Storage.DatabaseURL, cfg.Embedding.Dimensions, opts...)
	}
	if cfg.Storage.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return storage.NewSQLiteStore(cfg.Storage.DatabasePath, cfg.Embedding.Dimensions, opts...)
}

// initializeComponents wires the store, embedder, indexes and pipelines from cfg.
// coordOpts are applied after the configured coordinator options.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, coordOpts ...ingest.Option) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	onnx, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: cfg.Embedding.Dimensions,
		SampleRate: cfg.Embedding.SampleRate,
	})
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using signal-statistics embedder",
			zap.String("model", cfg.Embedding.ModelPath), zap.Error(err))
		c.Embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		c.Embedder = onnx
	}

	tracks, err := keyword.NewBleveIndex(cfg.Catalog.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize track index: %w", err)
	}
	c.Tracks = tracks
	if err := syncTrackIndex(ctx, store, tracks, logger); err != nil {
		logger.Warn("track index rebuild failed", zap.Error(err))
	}

	cache := &embedding.Tiered{Memory: embedding.NewEmbeddingCache(cfg.Embedding.CacheSize)}
	if cfg.Embedding.CacheDir != "" {
		persistent, err := embedding.NewBadgerCache(cfg.Embedding.CacheDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		c.persistentCache = persistent
		cache.Persistent = persistent
	}

	transcode := &source.Transcode{
		FFmpegPath:  cfg.Ingest.FFmpegPath,
		TempDir:     cfg.Ingest.TempDir,
		SampleRate:  cfg.Embedding.SampleRate,
		MaxDuration: cfg.Embedding.MaxDuration,
	}
	resolver := &source.Auto{Local: &source.Local{Transcode: transcode}}
	if cfg.Ingest.Resolver == "ytdlp" {
		resolver.Remote = source.NewYTDLP(cfg.Ingest.YTDLPPath, transcode,
			source.WithLogger(logger),
			source.WithRate(cfg.Ingest.RatePerSecond))
	}
	decoder := &audio.FileDecoder{SampleRate: cfg.Embedding.SampleRate, MaxDuration: cfg.Embedding.MaxDuration}
	worker := ingest.NewWorker(resolver, resolver, decoder, c.Embedder,
		ingest.WithCache(cache),
		ingest.WithWorkerLogger(logger))
	opts := append([]ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithCommitTimeout(cfg.Ingest.CommitTimeout),
		ingest.WithTrackIndex(tracks),
	}, coordOpts...)
	c.Coordinator = ingest.NewCoordinator(worker, store, opts...)

	c.Engine = similarity.NewEngine(store, tracks, &cfg.Search, logger)

	logger.Info("components initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("resolver", cfg.Ingest.Resolver),
		zap.Int("workers", cfg.Ingest.Workers))
	ok = true
	return c, nil
}

// syncTrackIndex rebuilds an empty text index from the store.
func syncTrackIndex(ctx context.Context, store storage.VectorStore, tracks keyword.TrackIndex, logger *zap.Logger) error {
	docs, err := tracks.DocCount()
	if err != nil {
		return err
	}
	if docs > 0 {
		return nil
	}
	const page = 500
	indexed := 0
	for offset := 0; ; offset += page {
		records, err := store.List(ctx, offset, page)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}
		if err := tracks.Index(ctx, records); err != nil {
			return err
		}
		indexed += len(records)
		if len(records) < page {
			break
		}
	}
	if indexed > 0 {
		logger.Info("track index rebuilt", zap.Int("tracks", indexed))
	}
	return nil
}

// diskPaths lists the on-disk state summed by status.
func diskPaths(cfg *config.Config) []string {
	paths := []string{cfg.Catalog.KeywordIndexPath}
	if cfg.Storage.Driver == "sqlite" {
		paths = append(paths, cfg.Storage.DatabasePath)
	}
	if cfg.Embedding.CacheDir != "" {
		paths = append(paths, cfg.Embedding.CacheDir)
	}
	return paths
}
