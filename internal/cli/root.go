package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/pkg/utils"
)

// VersionInfo contains build information.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

var versionInfo = VersionInfo{Version: "dev", Commit: "none", Date: "unknown"}

// SetVersion sets the build information (called from main).
func SetVersion(version, commit, date string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	format     string
}

func (g *globalFlags) outputFormat() (OutputFormat, error) {
	switch OutputFormat(g.format) {
	case OutputText, OutputJSON:
		return OutputFormat(g.format), nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", g.format)
	}
}

// setup loads .env and the config, then builds the logger.
func (g *globalFlags) setup() (*config.Config, string, *zap.Logger, error) {
	_ = godotenv.Load()
	cfg, path, err := loadConfig(g.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || g.debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, path, logger, nil
}

// NewRootCmd builds the niteru command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "niteru",
		Short: "Find songs that sound alike",
		Long: `niteru stores an audio embedding per song and answers "what sounds like this?"
with the nearest stored songs.

Songs are ingested by name (resolved and downloaded with yt-dlp) or from local audio
files, embedded, and committed in atomic batches.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&g.format, "format", string(OutputText), "output format: text or json")

	cmd.AddCommand(
		newServerCmd(g),
		newIngestCmd(g),
		newSimilarCmd(g),
		newCatalogCmd(g),
		newStatusCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "niteru %s\n", versionInfo.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Built:  %s\n", versionInfo.Date)
		},
	}
}
