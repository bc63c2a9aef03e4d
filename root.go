package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivebackup/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagProvider   string
	flagFolder     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the persistent flags taken after parsing.
type CLIFlags struct {
	ConfigPath string
	Provider   string
	Folder     string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs: the parsed flags, the
// resolved configuration and the logger built from both.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	logFile io.Closer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext installed by the root pre-run.
// Commands in skipConfigCommands must not call it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("BUG: CLIContext not initialized; is the command in skipConfigCommands?")
	}

	return cc
}

// skipConfigCommands lists commands that run without a resolved config.
var skipConfigCommands = map[string]bool{
	"drivebackup":            true,
	"drivebackup help":       true,
	"drivebackup completion": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drivebackup",
		Short: "Back up files into a cloud drive folder",
		Long: `Back up local files into a single backup folder on Google Drive or OneDrive.

The backup folder is found by name, or created when missing. Files are uploaded
once and updated in place afterwards; unchanged files are skipped.`,
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			cc, err := loadCLIContext(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext); ok && cc.logFile != nil {
				return cc.logFile.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "remote store: gdrive or onedrive")
	cmd.PersistentFlags().StringVar(&flagFolder, "folder", "", "backup folder name")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newFolderCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newReplaceCmd())
	cmd.AddCommand(newInsertCmd())
	cmd.AddCommand(newTrashCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func currentFlags() CLIFlags {
	return CLIFlags{
		ConfigPath: flagConfigPath,
		Provider:   flagProvider,
		Folder:     flagFolder,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}
}

// loadCLIContext resolves the effective configuration from the four-layer
// override chain and builds the logger.
func loadCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	flags := currentFlags()

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// Only explicitly set flags override env and file.
	if cmd.Flags().Changed("provider") {
		cli.Provider = flags.Provider
	}

	if cmd.Flags().Changed("folder") {
		cli.Folder = flags.Folder
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := buildLogger(resolved, flags)
	if err != nil {
		return nil, err
	}

	logger.Debug("config resolved",
		slog.String("path", resolved.Path),
		slog.String("provider", resolved.Provider),
		slog.String("folder", resolved.Folder),
	)

	return &CLIContext{Flags: flags, Cfg: resolved, Logger: logger, logFile: closer}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. The returned closer is
// non-nil when logs go to log_file.
func buildLogger(cfg *config.Resolved, flags CLIFlags) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	var (
		out    = os.Stderr
		closer io.Closer
		format = "auto"
	)

	if cfg != nil {
		format = cfg.LogFormat

		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return nil, nil, fmt.Errorf("opening log file: %w", err)
			}

			out, closer = f, f
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, out) {
		return slog.New(slog.NewJSONHandler(out, opts)), closer, nil
	}

	return slog.New(slog.NewTextHandler(out, opts)), closer, nil
}

// useJSONLogs resolves the "auto" format: text on a terminal, JSON
// everywhere else (files, pipes, service managers).
func useJSONLogs(format string, out *os.File) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	fd := out.Fd()

	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if errors.Is(err, errBackupIncomplete) {
		os.Exit(exitPartial)
	}

	os.Exit(1)
}
