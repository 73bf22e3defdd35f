package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/fileflyer/internal/config"
	"github.com/schaermu/fileflyer/internal/folder"
	"github.com/schaermu/fileflyer/internal/git"
	"github.com/schaermu/fileflyer/internal/repo"
	"github.com/schaermu/fileflyer/internal/report"
	"github.com/schaermu/fileflyer/internal/upload"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	debug     bool
	noDebug   bool
	logFormat string

	// Upload flags
	folderName string
	originView bool
	rawView    bool
	plainOut   bool
	jsonOut    bool
	dryRun     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fileflyer",
	Short: "Share local files through a Git hosted repository",
	Long: `fileflyer copies local files into a freshly named folder of a Git working
copy, commits and pushes them, and prints a shareable URL for every file.

Folder names are built from templates in the configuration file, for example
"files/{date}/{XXXXXXXX}" expands to the current date and a random token.`,
	SilenceUsage: true,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Show the configuration and where it is stored",
	Long: `Configure prints the configuration file path and its contents with the
token masked, followed by a preview of every folder template.

A default configuration is created when none exists yet.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration file if it does not exist",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Check whether the repository is ready for an upload",
	Long: `Repo verifies that a base URL is configured, the working copy is on the
configured branch, has no uncommitted changes, and that the configured remote
exists. Every failed check is logged.`,
	Args: cobra.NoArgs,
	RunE: runRepo,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files and directories and print their share URLs",
	Long: `Upload copies the given files and directories into a new folder of the
working copy, commits them in a single commit, pushes to the configured remote
and prints one share URL per uploaded file.

Directories are copied recursively and keep their structure.`,
	RunE: runUpload,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "fileflyer %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/fileflyer/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noDebug, "no-debug", false, "disable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "no-debug")

	// Upload command flags
	uploadCmd.Flags().StringVarP(&folderName, "folder", "f", config.DefaultFolder, "folder template to upload into")
	uploadCmd.Flags().BoolVar(&originView, "origin", false, "link to the rendered file page")
	uploadCmd.Flags().BoolVar(&rawView, "raw", false, "link to the raw file (default)")
	uploadCmd.Flags().BoolVar(&plainOut, "plain", false, "print paths and URLs as text (default)")
	uploadCmd.Flags().BoolVar(&jsonOut, "json", false, "print a JSON object mapping paths to URLs")
	uploadCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be uploaded without making changes")
	uploadCmd.MarkFlagsMutuallyExclusive("origin", "raw")
	uploadCmd.MarkFlagsMutuallyExclusive("plain", "json")

	// Add commands
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(versionCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	logger := setupLogger(cmd.ErrOrStderr())

	path, err := configPath()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n\n%s\n", path, data)

	resolver := folder.NewResolver(logger)
	_, _ = fmt.Fprintln(out, "Folder previews:")
	for _, name := range cfg.FolderNames() {
		format, _ := cfg.FolderFormat(name)
		line := fmt.Sprintf("  %s: %s", name, resolver.Resolve(format))
		if unsupported := folder.Unsupported(format); len(unsupported) > 0 {
			line += fmt.Sprintf(" (unsupported: %v)", unsupported)
		}
		_, _ = fmt.Fprintln(out, line)
	}

	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	_, created, err := config.LoadOrInit(path)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	if created {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file %s\n", path)
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration file %s already exists\n", path)
	}
	return nil
}

func runRepo(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger(cmd.ErrOrStderr())

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ok := repo.NewChecker(cfg, openGit(cfg, logger), logger).Check(ctx)

	out := cmd.OutOrStdout()
	if err := report.Verdict(out, ok, colorEnabled(out)); err != nil {
		return err
	}
	if !ok {
		return upload.ErrRepoNotReady
	}
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger(cmd.ErrOrStderr())

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine := upload.NewEngine(cfg, openGit(cfg, logger), folder.NewResolver(logger), logger)
	if stderr, ok := cmd.ErrOrStderr().(*os.File); ok && report.IsTerminal(stderr) && !dryRun {
		engine.WithProgress(newBarProgress(stderr))
	}

	result, err := engine.Run(ctx, args, upload.Options{
		Folder: folderName,
		Origin: originView,
		DryRun: dryRun,
	})
	if err != nil {
		logger.Error("upload failed", "error", err)
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return report.JSON(out, result, colorEnabled(out))
	}
	return report.Plain(out, result, colorEnabled(out))
}

func setupLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug && !noDebug {
		level = slog.LevelDebug
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the configuration, writing the default one on first use
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	logger.Debug("loading configuration", "path", path)

	cfg, created, err := config.LoadOrInit(path)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("created default configuration, edit it before uploading", "path", path)
	}

	logger.Debug("configuration loaded",
		"url", cfg.RepoURL(),
		"remote", cfg.RemoteName(),
		"branch", cfg.Branch(),
		"path", cfg.GitHub.Path,
		"client", cfg.GitHub.Client)

	return cfg, nil
}

// openGit opens the working copy. It returns nil when that fails, which the
// repository checks report as an unavailable working copy.
func openGit(cfg *config.Config, logger *slog.Logger) git.Client {
	client, err := newGitClient(cfg)
	if err != nil {
		logger.Error("failed to open working copy", "error", err)
		return nil
	}
	return client
}

func newGitClient(cfg *config.Config) (git.Client, error) {
	dir, err := cfg.RepoPath()
	if err != nil {
		return nil, err
	}

	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}

	return git.New(git.Backend(cfg.GitHub.Client), dir, git.Options{
		Token:       token,
		AuthorName:  cfg.Commit.AuthorName,
		AuthorEmail: cfg.Commit.AuthorEmail,
	})
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && !color.NoColor && report.IsTerminal(f)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
