package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"bundlegraph/internal/compiler"
	"bundlegraph/internal/metrics"
	"bundlegraph/internal/watcher"
)

var metricsListen string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build, then rebuild on file changes",
	Long: `Build the module graph and keep it up to date. Only modules whose files,
directories or missing candidates changed are rebuilt.

Examples:
  bundler watch
  bundler watch --metrics-listen :9464`,
	RunE: runWatch,
}

func init() {
	addPassFlags(watchCmd)
	watchCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if metricsListen != "" {
		cfg.Metrics.Listen = metricsListen
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	c, err := compiler.New(cfg, compiler.WithLogger(logger), compiler.WithMetrics(m))
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, m, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out := cmd.OutOrStdout()
	res, err := c.Build(ctx, nil)
	if res != nil {
		_ = printResult(out, c, res, "human")
	}
	if err != nil {
		return err
	}

	var w *watcher.Watcher
	w, err = watcher.New(watcher.Config{
		DebounceMs: cfg.Watch.DebounceMs,
		Ignore:     cfg.Watch.Ignore,
	}, logger, func(ctx context.Context, changes watcher.ChangeSet) error {
		res, err := c.Rebuild(ctx, changes.Modified, changes.Removed, nil)
		if res != nil {
			_ = printResult(out, c, res, "human")
		}
		if uerr := w.Update(watchSets(c)); uerr != nil {
			logger.Warn("Failed to update watched paths", "error", uerr)
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := w.Update(watchSets(c)); err != nil {
		w.Close()
		return err
	}
	return w.Run(ctx)
}

func watchSets(c *compiler.Compiler) watcher.Sets {
	ws := c.WatchSets()
	files := ws.Files.Clone()
	files.AddAll(ws.Build)
	return watcher.Sets{Files: files, Contexts: ws.Contexts, Missing: ws.Missing}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
