package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bundlegraph/internal/config"
	"bundlegraph/internal/slogutil"
	"bundlegraph/internal/version"
)

var (
	configPath  string
	contextDir  string
	verbosity   int
	quiet       bool
	logFormat   string
	entryFlags  []string
	bailFlag    bool
	parallelism int
	noCache     bool
)

var rootCmd = &cobra.Command{
	Use:   "bundler",
	Short: "Incremental module graph builder",
	Long: `bundler resolves entry modules and everything they import into a deduplicated
module graph. Builds run concurrently, cache results between runs and, in watch
mode, rebuild only the part of the graph a file change affects.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("bundler version {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default: bundler.{toml,yaml,json} in the context directory)")
	flags.StringVarP(&contextDir, "context", "C", ".", "Project root")
	flags.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	flags.StringVar(&logFormat, "log-format", "", "Log format: text or json (default from config)")
}

// addPassFlags registers the flags shared by commands that run a pass
func addPassFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&entryFlags, "entry", "e", nil, "Entry as name=request (repeatable, replaces configured entries)")
	cmd.Flags().BoolVar(&bailFlag, "bail", false, "Stop at the first resolve or build error")
	cmd.Flags().IntVarP(&parallelism, "parallelism", "j", 0, "Concurrent tasks (0 = configured value)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the build cache")
}

// loadConfig reads the configuration and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfigFromPath(configPath)
	} else {
		root, absErr := filepath.Abs(contextDir)
		if absErr != nil {
			return nil, absErr
		}
		cfg, err = config.LoadConfig(root)
	}
	if err != nil {
		return nil, err
	}

	if len(entryFlags) > 0 {
		cfg.Entries = make(map[string]string, len(entryFlags))
		for i, e := range entryFlags {
			name, request, ok := strings.Cut(e, "=")
			if !ok {
				name, request = fmt.Sprintf("entry%d", i), e
			}
			cfg.Entries[name] = request
		}
	}
	if f := cmd.Flags().Lookup("bail"); f != nil && f.Changed {
		cfg.Bail = bailFlag
	}
	if parallelism > 0 {
		cfg.Parallelism = parallelism
	}
	if noCache {
		cfg.Cache.Enabled = false
		cfg.Cache.Persistent = false
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the console logger, tee'd into the configured log file. The returned
// closer releases the file.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verbosity > 0 || quiet {
		level = slogutil.LevelFromVerbosity(verbosity, quiet)
	}
	console := slogutil.NewFormatLogger(os.Stderr, cfg.Logging.Format, level)
	if cfg.Logging.File == "" {
		return console, nopCloser{}, nil
	}

	path := cfg.Logging.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Context, path)
	}
	f, err := slogutil.OpenLogFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	file := slogutil.NewFormatLogger(f, cfg.Logging.Format, slog.LevelDebug)
	return slog.New(slogutil.NewTeeHandler(console.Handler(), file.Handler())), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
