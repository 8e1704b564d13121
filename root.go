package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/docsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagBackend    string
	flagProject    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// tolerateConfigAnnotation marks commands that must keep working when the
// config file is broken (login, logout, config show). They get defaults
// plus a warning instead of a hard failure.
const tolerateConfigAnnotation = "tolerate_config_errors"

// logBackups is how many rotated log files lumberjack keeps.
const logBackups = 3

// CLIFlags is the parsed form of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	Backend    string
	Project    string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved config and logger to every subcommand.
// It is built once in PersistentPreRunE and stored in the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Config
	Logger *slog.Logger

	logFile io.Closer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext set by the root pre-run. Panics if
// it is missing, which is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("docsync: command context has no CLIContext")
	}

	return cc
}

// Close flushes and closes the rotated log file, if any.
func (cc *CLIContext) Close() {
	if cc.logFile != nil {
		cc.logFile.Close()
	}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "Sync a local folder into a cloud document store and ask it questions",
		Long: `docsync pushes the supported documents of a project folder into a
per-project file-search store, keeps the store current as files change, and
answers questions grounded in those documents.`,
		Version: version,
		// Silence Cobra's default error/usage printing; exitOnError handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext); ok {
				cc.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "document store backend (gemini or minio)")
	cmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "project name (default: from document-sync.json)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newQuestionsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration from the override
// chain and builds the logger.
func loadCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		Backend:    flagBackend,
		Project:    flagProject,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		Backend:    flags.Backend,
	})
	if err != nil {
		if cmd.Annotations[tolerateConfigAnnotation] == "" {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Warning: %v (continuing with defaults)\n", err)

		cfg = config.DefaultConfig()

		cfg.DataDir = env.DataDir
		if cfg.DataDir == "" {
			cfg.DataDir = config.DefaultDataDir()
		}
	}

	logger, closer, err := buildLogger(cfg, flags)
	if err != nil {
		return nil, err
	}

	return &CLIContext{Flags: flags, Cfg: cfg, Logger: logger, logFile: closer}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. When log_file is set,
// output is mirrored into a size-rotated file.
func buildLogger(cfg *config.Config, flags CLIFlags) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
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
		w      io.Writer = os.Stderr
		closer io.Closer
	)

	if cfg != nil && cfg.Logging.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		lj := &lumberjack.Logger{
			Filename:   cfg.Logging.LogFile,
			MaxSize:    cfg.Logging.LogMaxSizeMB,
			MaxBackups: logBackups,
			MaxAge:     cfg.Logging.LogRetentionDays,
		}

		w = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg != nil && cfg.Logging.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), closer, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	exitWithCode(err, 1)
}

func exitWithCode(err error, code int) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}
