package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/deploystatic/internal/config"
	"github.com/schaermu/deploystatic/internal/console"
	"github.com/schaermu/deploystatic/internal/deploy"
	"github.com/schaermu/deploystatic/internal/pipeline"
	"github.com/schaermu/deploystatic/internal/prompt"
	"github.com/schaermu/deploystatic/internal/static"
	"github.com/schaermu/deploystatic/internal/storage"
	"github.com/schaermu/deploystatic/internal/vcs"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Deploy command flags
	dryRun    bool
	commitID  string
	repoPath  string
	fileList  []string
	noInput   bool
	verbosity int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deploystatic",
	Short: "Deploy changed static files to storage",
	Long: `deploystatic copies the static files changed by a commit, or listed explicitly,
to the configured storage backend (local directory or S3 with an optional CDN)
and rebuilds the asset bundles that contain them.

Update your working copy first, then run deploy with the commit to publish.`,
	SilenceUsage: true,
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the static files changed in a commit",
	Long: `Deploy lists the files changed by a commit relative to its first parent (or the
files given with --file), asks for confirmation, then copies every file that
lives below a static root to storage and post-processes it.

Files that are not static, or that no longer exist locally, are reported and
skipped. The first storage failure stops the run.`,
	Example: `  deploystatic deploy --commit 3b282d9a07db
  deploystatic deploy -f project/static/css/all.css -f project/static/js/feedback.js`,
	RunE: runDeploy,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every static file the finders know",
	RunE:  runList,
}

var remoteLsCmd = &cobra.Command{
	Use:   "remote-ls [PREFIX]",
	Short: "List the files stored in the storage backend",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRemoteLs,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("deploystatic %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/deploystatic/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Deploy command flags
	deployCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "list the files that would be deployed without saving them")
	deployCmd.Flags().StringVarP(&commitID, "commit", "c", "", "revision to deploy")
	deployCmd.Flags().StringVarP(&repoPath, "path", "p", "", "path to the working copy (default is vcs.default_path)")
	deployCmd.Flags().StringArrayVarP(&fileList, "file", "f", nil, "file to deploy instead of a commit (repeatable)")
	deployCmd.Flags().BoolVar(&noInput, "noinput", false, "do not prompt for confirmation")
	deployCmd.Flags().IntVarP(&verbosity, "verbosity", "v", 1, "verbosity level; 2 prints per-file details")

	// Add commands
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(remoteLsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create dependencies
	finders, err := static.NewFinders(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up static finders: %w", err)
	}
	backend, variant, err := openStorage(ctx, cfg, finders, logger)
	if err != nil {
		return err
	}
	lister, err := vcs.New(cfg)
	if err != nil {
		return err
	}
	resolver := static.NewResolver(cfg.StaticSegment(), finders...)

	// Create deploy engine
	engine := deploy.NewEngine(cfg, variant, lister, resolver, backend,
		prompt.New(cmd.InOrStdin(), cmd.OutOrStdout()),
		console.New(cmd.OutOrStdout()),
		logger)

	// Run deploy
	_, err = engine.Run(ctx, deploy.Options{
		Commit:      commitID,
		Path:        repoPath,
		Files:       fileList,
		DryRun:      dryRun,
		Interactive: !noInput,
		Verbose:     verbosity > 1,
	})
	if err != nil {
		logger.Error("deploy failed", "error", err)
		return err
	}

	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	finders, err := static.NewFinders(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up static finders: %w", err)
	}

	files, err := static.ListAll(finders, cfg.IgnorePatterns())
	if err != nil {
		return fmt.Errorf("failed to list static files: %w", err)
	}

	out := console.New(cmd.OutOrStdout())
	for _, f := range files {
		out.Printf("%s\t%s", f.RelPath, f.AbsPath)
	}
	logger.Info("static files listed", "count", len(files))
	return nil
}

func runRemoteLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	backend, _, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	lister, ok := backend.(storage.Lister)
	if !ok {
		return fmt.Errorf("storage backend %s cannot list files", cfg.Storage.Backend)
	}

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	names, err := lister.List(ctx, prefix)
	if err != nil {
		return err
	}

	out := console.New(cmd.OutOrStdout())
	for _, name := range names {
		out.Printf("%s\t%s", name, backend.URL(name))
	}
	return nil
}

// openStorage builds the configured backend, decorated with post-processing
// when the variant bundles or hashes
func openStorage(ctx context.Context, cfg *config.Config, finders []static.Finder, logger *slog.Logger) (storage.Backend, storage.Variant, error) {
	backend, variant, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, storage.Variant{}, err
	}

	packager := pipeline.NewPackager(cfg, finders, logger)
	return pipeline.Wrap(backend, variant, packager, logger), variant, nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr, stdout carries status lines and prompts
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/deploystatic/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"backend", cfg.Storage.Backend,
		"location", cfg.Storage.Location,
		"static_dirs", len(cfg.Static.Dirs),
		"app_dirs", len(cfg.Static.AppDirs),
		"vcs_driver", cfg.VCS.Driver)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
