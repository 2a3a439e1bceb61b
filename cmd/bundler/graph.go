package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bundlegraph/internal/compiler"
	"bundlegraph/internal/export"
	"bundlegraph/internal/graph"
)

var (
	graphFormat string
	graphOutput string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and print the module graph",
	Long: `Build the module graph and write it in a deterministic order.

Examples:
  bundler graph
  bundler graph --format yaml
  bundler graph --format text -o graph.txt`,
	RunE: runGraph,
}

func init() {
	addPassFlags(graphCmd)
	graphCmd.Flags().StringVar(&graphFormat, "format", export.FormatJSON, "Output format (json, yaml, text)")
	graphCmd.Flags().StringVarP(&graphOutput, "output", "o", "", "Write to a file instead of stdout")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
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
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics.Sorted() {
		logger.Warn("Diagnostic", "severity", d.Severity, "module", d.Module, "message", d.Message)
	}

	out := cmd.OutOrStdout()
	if graphOutput != "" {
		f, err := os.Create(graphOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	var werr error
	c.View(func(g *graph.ModuleGraph) {
		werr = export.Write(out, g, graphFormat, export.Options{Context: cfg.Context})
	})
	return werr
}
