package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Pizzabot/pkg/corpus"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pizzabot",
		Short: "Pizzabot - a chat bot that replies with Markov chains",
		Long: `Pizzabot learns from every message it sees in a channel and answers with a
reply stitched together from what it has learned.

Without a subcommand it serves the HTTP API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.json", "path to the JSON config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the HTTP API (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(configPath)
			},
		},
		newImportCmd(&configPath),
		newExportCmd(&configPath),
		newReplyCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pizzabot %s\ncommit: %s\nbuilt:  %s\n", Version, Commit, BuildDate)
			},
		},
	)
	return rootCmd
}

func newImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import [dir]",
		Short: "Import legacy channel files into the message journal",
		Long: `Import every *.txt file of a directory into the message journal, one channel
per file. The directory defaults to bot_config.legacy_dir. Once imported, clear
legacy_dir in the config or the messages are learned twice on startup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			dir := config.Bot.LegacyDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no directory given and bot_config.legacy_dir is empty")
			}

			logger := newLogger(config.Server.LogLevel, cmd.ErrOrStderr())
			db, journal, err := openStorage(config, logger)
			if err != nil {
				return err
			}
			defer closeStorage(db, journal, logger)
			if journal == nil {
				return errors.New("the message journal is disabled in the config")
			}

			stats, err := journal.ImportLegacyDir(cmd.Context(), dir, config.Bot.LegacyMagic, config.Bot.SkipChannels)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d channels: %d messages, %d context lines\n", stats.Channels, stats.Messages, stats.Context)
			if sameDir(dir, config.Bot.LegacyDir) {
				logger.Warn("The imported directory is still configured as legacy_dir and will be loaded again on startup", "dir", dir)
			}
			return nil
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <channel>",
		Short: "Write the journal of a channel to stdout in the legacy format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(config.Server.LogLevel, cmd.ErrOrStderr())
			db, journal, err := openStorage(config, logger)
			if err != nil {
				return err
			}
			defer closeStorage(db, journal, logger)
			if journal == nil {
				return errors.New("the message journal is disabled in the config")
			}

			_, err = journal.ExportLegacy(cmd.Context(), sanitizeChannel(args[0]), cmd.OutOrStdout(), config.Bot.LegacyMagic)
			return err
		},
	}
}

func newReplyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <text>",
		Short: "Rebuild the model and print one reply to text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(config.Server.LogLevel, cmd.ErrOrStderr())
			db, journal, err := openStorage(config, logger)
			if err != nil {
				return err
			}
			defer closeStorage(db, journal, logger)

			bot := NewBot(config.Bot, journal, logger)
			if _, err = bot.Rebuild(cmd.Context()); err != nil {
				return err
			}
			reply, ok := bot.Reply(strings.Join(args, " "))
			if !ok {
				return errors.New("not enough data to reply")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

// serve hosts the API until a shutdown is requested, restarting in place when asked.
func serve(configPath string) error {
	baseLogger := newLogger("info", os.Stdout)

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Pizzabot has shut down.")
	return nil
}

// run is one server cycle. It returns whenever the server is shut down or restarted.
func run(configPath string, actionChan chan string) (string, error) {

	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := newLogger(config.Server.LogLevel, os.Stdout)
	logger.Info("Starting server cycle...")

	db, journal, err := openStorage(&config, logger)
	if err != nil {
		return "", err
	}
	defer closeStorage(db, journal, logger)

	bot := NewBot(config.Bot, journal, logger)
	if _, err = bot.Rebuild(context.Background()); err != nil {
		return "", fmt.Errorf("failed to build model: %w", err)
	}

	server := NewServer(cm, logger, db, bot, actionChan)
	apiHttpServer := &http.Server{
		Addr:              config.Server.ApiAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
			actionChan <- actionShutdown
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	return action, nil
}

// newLogger builds a text logger at the named level, defaulting to info.
func newLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// openStorage opens the database, sets up every schema and prepares the journal.
// The journal is nil when it is disabled in config.
func openStorage(config *Config, logger *slog.Logger) (*sql.DB, *corpus.Journal, error) {
	if err := os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err = corpus.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup journal schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup auth schema: %w", err)
	}

	if !config.Bot.JournalEnabled {
		logger.Info("Message journal disabled")
		return db, nil, nil
	}
	journal, err := corpus.NewJournal(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to prepare journal: %w", err)
	}
	journal.SetLogger(logger.With("component", "journal"))
	return db, journal, nil
}

func closeStorage(db *sql.DB, journal *corpus.Journal, logger *slog.Logger) {
	if journal != nil {
		journal.Close()
	}
	logger.Info("Closing database connection.")
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
}

// sameDir reports whether a and b name the same directory.
func sameDir(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
