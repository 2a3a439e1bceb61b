package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bundlegraph/internal/compiler"
	"bundlegraph/internal/errors"
	"bundlegraph/internal/makepass"
)

var buildFormat string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the module graph once",
	Long: `Resolve the configured entries and build every module they reach.

Examples:
  bundler build
  bundler build -e main=./src/index.js -e admin=./src/admin.js
  bundler build --bail --format json`,
	RunE: runBuild,
}

func init() {
	addPassFlags(buildCmd)
	buildCmd.Flags().StringVar(&buildFormat, "format", "human", "Output format (human, json)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := compiler.New(cfg, compiler.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Build(ctx, nil)
	if res != nil {
		if perr := printResult(cmd.OutOrStdout(), c, res, buildFormat); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if res.Diagnostics.HasErrors() {
		return fmt.Errorf("build finished with %d errors", len(res.Diagnostics.Errors()))
	}
	return nil
}

// PassReport is the JSON form of a pass result
type PassReport struct {
	Session          string             `json:"session"`
	Stats            makepass.Stats     `json:"stats"`
	Modules          int                `json:"modules"`
	ExportsMayChange bool               `json:"exportsMayChange"`
	Errors           []DiagnosticReport `json:"errors,omitempty"`
	Warnings         []DiagnosticReport `json:"warnings,omitempty"`
}

// DiagnosticReport is the JSON form of a diagnostic
type DiagnosticReport struct {
	Code    string `json:"code,omitempty"`
	Module  string `json:"module,omitempty"`
	Message string `json:"message"`
}

func newPassReport(c *compiler.Compiler, res *makepass.Result) *PassReport {
	report := &PassReport{
		Session:          c.ID(),
		Stats:            res.Stats,
		Modules:          c.ModuleCount(),
		ExportsMayChange: res.ExportsMayChange,
	}
	for _, d := range res.Diagnostics.Sorted() {
		dr := DiagnosticReport{Code: string(d.Code), Module: d.Module, Message: d.Message}
		if d.Severity == errors.SeverityError {
			report.Errors = append(report.Errors, dr)
		} else {
			report.Warnings = append(report.Warnings, dr)
		}
	}
	return report
}

func printResult(w io.Writer, c *compiler.Compiler, res *makepass.Result, format string) error {
	report := newPassReport(c, res)
	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case "human":
		for _, d := range report.Errors {
			fmt.Fprintf(w, "ERROR %s\n", formatDiagnostic(d))
		}
		for _, d := range report.Warnings {
			fmt.Fprintf(w, "WARN  %s\n", formatDiagnostic(d))
		}
		s := report.Stats
		fmt.Fprintf(w, "%d modules (%d built, %d cached, %d removed) in %s\n",
			report.Modules, s.BuildTasks, s.CacheHits, s.ModulesCleaned, s.Duration.Round(time.Millisecond))
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	return nil
}

func formatDiagnostic(d DiagnosticReport) string {
	s := d.Message
	if d.Module != "" {
		s = d.Module + ": " + s
	}
	if d.Code != "" {
		s = "[" + d.Code + "] " + s
	}
	return s
}
