package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/catalog"
	"github.com/hyperjump/niteru/internal/ingest"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/server"
	"github.com/hyperjump/niteru/internal/storage"
	"github.com/hyperjump/niteru/internal/watcher"
)

func newServerCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long: `Start the HTTP API. When watch.directories is configured, audio files dropped
into those directories are ingested in batches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			logger.Info("config loaded", zap.String("config_path", cfgPath), zap.Bool("debug", cfg.Debug || g.debug))

			ctx, stop := signalContext()
			defer stop()

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			opts := []server.Option{
				server.WithTrackIndex(components.Tracks),
				server.WithDiskPaths(diskPaths(cfg)...),
			}
			if len(cfg.Watch.Directories) > 0 {
				inbox := watcher.NewInbox(ctx, components.Coordinator, watcher.WithInboxLogger(logger))
				w := watcher.NewWatcher(cfg.Watch.Directories, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(),
					inbox.Add, watcher.WithLogger(logger))
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
				w.ScanExisting()
				opts = append(opts, server.WithWatch(w))
			}

			srv := server.NewServer(components.Engine, components.Coordinator, components.Store, &cfg.Server, logger, opts...)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	var artist, title string
	cmd := &cobra.Command{
		Use:   "ingest [track-list | audio-file...]",
		Short: "Ingest tracks into the store",
		Long: `Ingest tracks as one atomic batch.

Tracks come from a track list (.json, .csv, .xlsx, .txt), from local audio files
named "Artist - Title.ext", or from --artist and --title.

Examples:
  niteru ingest top_genre_tracks.json
  niteru ingest --artist "Radiohead" --title "Karma Police"
  niteru ingest ~/music/"Queen - Under Pressure.wav"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.outputFormat()
			if err != nil {
				return err
			}
			queries, err := ingestQueries(args, artist, title)
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return fmt.Errorf("no tracks to ingest")
			}

			cfg, _, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			var coordOpts []ingest.Option
			if format == OutputText {
				progress := cmd.ErrOrStderr()
				coordOpts = append(coordOpts, ingest.WithProgress(func(done, total int) {
					fmt.Fprintf(progress, "\r%d/%d tracks processed", done, total)
					if done == total {
						fmt.Fprintln(progress)
					}
				}))
			}

			ctx, stop := signalContext()
			defer stop()
			components, err := initializeComponents(ctx, cfg, logger, coordOpts...)
			if err != nil {
				return err
			}
			defer components.Close()

			result, err := components.Coordinator.IngestBatch(ctx, queries)
			if result != nil {
				if werr := WriteIngestResult(cmd.OutOrStdout(), result, format); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&artist, "artist", "", "track artist")
	cmd.Flags().StringVar(&title, "title", "", "track title")
	return cmd
}

// ingestQueries builds the batch from positional arguments or the --artist/--title pair.
func ingestQueries(args []string, artist, title string) ([]models.TrackQuery, error) {
	if artist != "" || title != "" {
		q := models.TrackQuery{Artist: artist, Title: title}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		return []models.TrackQuery{q}, nil
	}
	if len(args) == 1 && isTrackList(args[0]) {
		entries, err := catalog.Load(args[0])
		if err != nil {
			return nil, err
		}
		return catalog.Queries(entries), nil
	}
	queries := make([]models.TrackQuery, 0, len(args))
	for _, p := range args {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("audio file: %w", err)
		}
		queries = append(queries, models.TrackQuery{Path: p})
	}
	return queries, nil
}

func isTrackList(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".csv", ".xlsx", ".txt":
		return true
	}
	return false
}

func newSimilarCmd(g *globalFlags) *cobra.Command {
	var (
		q         models.SimilarQuery
		serverURL string
	)
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "List the tracks closest to a stored track",
		Long: `List the stored tracks closest to a track, identified by --artist and --title
or by --id. The track itself is never listed.

Examples:
  niteru similar --artist "Radiohead" --title "Karma Police"
  niteru similar --id 42 -k 10 --format json
  niteru similar --server http://localhost:8000 --artist Queen --title "Under Pressure"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.outputFormat()
			if err != nil {
				return err
			}
			if q.ID == 0 && (q.Artist == "" || q.Title == "") {
				return fmt.Errorf("--artist and --title (or --id) are required")
			}
			if serverURL != "" {
				resp, err := similarViaHTTP(serverURL, &q)
				if err != nil {
					return err
				}
				return WriteNeighbors(cmd.OutOrStdout(), resp, format)
			}

			cfg, _, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			resp, err := components.Engine.FindSimilar(cmd.Context(), &q)
			if err != nil {
				return err
			}
			return WriteNeighbors(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().StringVar(&q.Artist, "artist", "", "track artist")
	cmd.Flags().StringVar(&q.Title, "title", "", "track title")
	cmd.Flags().Int64Var(&q.ID, "id", 0, "track id")
	cmd.Flags().IntVarP(&q.K, "k", "k", 0, "number of neighbors (default from config)")
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL; empty uses the store directly")
	return cmd
}

func newCatalogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build track lists",
	}
	var (
		out      string
		genres   []string
		perGenre int
	)
	build := &cobra.Command{
		Use:   "build",
		Short: "Fetch top tracks per genre from Last.fm",
		Long: `Fetch the top tracks for each genre tag from Last.fm and write them as JSON.
Requires LASTFM_API_KEY (or catalog.lastfm_api_key).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if len(genres) == 0 {
				genres = cfg.Catalog.Genres
			}
			if perGenre <= 0 {
				perGenre = cfg.Catalog.PerGenre
			}

			ctx, stop := signalContext()
			defer stop()
			client := catalog.NewLastFM(cfg.Catalog.LastFMBaseURL, cfg.Catalog.LastFMAPIKey, catalog.WithLastFMLogger(logger))
			dataset, err := client.BuildDataset(ctx, genres, perGenre)
			if err != nil {
				return err
			}
			if err := catalog.WriteJSON(out, dataset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d tracks across %d genres to %s\n", len(dataset), len(genres), out)
			return nil
		},
	}
	build.Flags().StringVar(&out, "out", "top_genre_tracks.json", "output file")
	build.Flags().StringSliceVar(&genres, "genres", nil, "genre tags (default from config)")
	build.Flags().IntVar(&perGenre, "per-genre", 0, "tracks per genre (default from config)")
	cmd.AddCommand(build)
	return cmd
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.outputFormat()
			if err != nil {
				return err
			}
			if serverURL != "" {
				st, err := statusViaHTTP(serverURL)
				if err != nil {
					return err
				}
				return WriteStats(cmd.OutOrStdout(), st, format)
			}

			cfg, _, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			st, err := storage.CollectStats(cmd.Context(), store, diskPaths(cfg)...)
			if err != nil {
				return err
			}
			return WriteStats(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL; empty uses the store directly")
	return cmd
}
