// ABOUTME: Root cobra command, persistent flags, and the shared config, logger and store setup.
// ABOUTME: Every subcommand runs after PersistentPreRunE has loaded configuration.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2389-research/pressroom/config"
	"github.com/2389-research/pressroom/logging"
	"github.com/2389-research/pressroom/store"
)

// app carries flag values and what PersistentPreRunE derives from them.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	out    io.Writer
	errOut io.Writer

	cfg *config.Config
	log *slog.Logger
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "pressroom",
		Short: "Resilient multi-key article generation",
		Long: `pressroom turns a keyword into a finished, SEO-ready article by running a
fixed sequence of research and generation steps. Each step rotates across a
pool of API keys, retries transient failures, and streams progress as NDJSON.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(a),
		newGenerateCommand(a),
		newKeysCommand(a),
		newRunsCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(a.errOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger
	return nil
}

// openStore opens the database, creating its directory when needed.
func (a *app) openStore() (*store.Store, error) {
	path := a.cfg.Database.Path
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return store.Open(path)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.out, "pressroom %s\n", version)
			return err
		},
	}
}
