// Package cli is the openworker command tree.
package cli

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"openworker/internal/config"
	"openworker/internal/db"
	"openworker/internal/logging"
)

type rootFlags struct {
	home     string
	logLevel string
}

// NewRootCmd builds the command tree. Running it without a subcommand starts
// the chat UI.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "openworker",
		Short:         "A desktop assistant that works with the files in your folders",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.home, "home", "", "state directory (default $OPENWORKER_HOME or ~/.openworker)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newChatCmd(flags),
		newServeCmd(flags),
		newFoldersCmd(flags),
		newIndexCmd(flags),
		newInitCmd(flags),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		msg := err.Error()
		if !strings.HasPrefix(msg, "Error") {
			msg = "Error: " + msg
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}

// app is what every command needs: config, logger and the state
// database.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	logCloser io.Closer
}

func openRuntime(flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.home)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	logger, closer, err := logging.New(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		// logging.New already fell back to stderr.
		logger.Warn("logging.file_unavailable", "path", cfg.Log.File, "error", err)
	}

	conn, err := db.Open(cfg.DBPath())
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return &app{cfg: cfg, logger: logger, db: conn, logCloser: closer}, nil
}

func (r *app) folders() db.FolderStore { return db.FolderStore{DB: r.db} }

func (r *app) Close() error {
	err := r.db.Close()
	if r.logCloser != nil {
		_ = r.logCloser.Close()
	}
	return err
}
