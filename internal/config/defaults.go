package config

import "time"

// Lookup ambiguity policies.
const (
	AmbiguityFirst = "first"
	AmbiguityError = "error"
)

// DefaultGenres are the Last.fm tags used to build the reference dataset.
var DefaultGenres = []string{
	"pop", "rock", "hiphop", "rap", "jazz", "classical", "edm", "house",
	"techno", "trance", "metal", "punk", "country", "folk", "blues",
	"reggae", "soul", "funk", "rnb", "indie", "alternative", "grunge",
	"kpop", "latin", "salsa", "afrobeat", "dancehall", "dubstep",
	"lofi", "soundtrack",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/niteru/data/db/tracks.db"
	}
	if cfg.Storage.IndexType == "" {
		cfg.Storage.IndexType = "memory"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/niteru/data/models/openl3-music-mel256-512.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.SampleRate == 0 {
		cfg.Embedding.SampleRate = 16000
	}
	if cfg.Embedding.MaxDuration == 0 {
		cfg.Embedding.MaxDuration = 60 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 5
	}
	if cfg.Ingest.TempDir == "" {
		cfg.Ingest.TempDir = "/usr/local/var/niteru/tmp"
	}
	if cfg.Ingest.Resolver == "" {
		cfg.Ingest.Resolver = "ytdlp"
	}
	if cfg.Ingest.YTDLPPath == "" {
		cfg.Ingest.YTDLPPath = "yt-dlp"
	}
	if cfg.Ingest.FFmpegPath == "" {
		cfg.Ingest.FFmpegPath = "ffmpeg"
	}
	if cfg.Ingest.RatePerSecond == 0 {
		cfg.Ingest.RatePerSecond = 2
	}
	if cfg.Ingest.CommitTimeout == 0 {
		cfg.Ingest.CommitTimeout = 30 * time.Second
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}
	if cfg.Search.Ambiguity == "" {
		cfg.Search.Ambiguity = AmbiguityFirst
	}
	if cfg.Catalog.LastFMBaseURL == "" {
		cfg.Catalog.LastFMBaseURL = "https://ws.audioscrobbler.com/2.0/"
	}
	if cfg.Catalog.Genres == nil {
		cfg.Catalog.Genres = DefaultGenres
	}
	if cfg.Catalog.PerGenre == 0 {
		cfg.Catalog.PerGenre = 100
	}
	if cfg.Catalog.KeywordIndexPath == "" {
		cfg.Catalog.KeywordIndexPath = "/usr/local/var/niteru/data/indices/bleve"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".wav"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
