package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"avifopt/animation"
	"avifopt/metrics"
	"avifopt/still"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(defaultConfig(), run)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *Config) error {
	ctx := cmd.Context()
	console := newConsole(cfg, cmd)
	recorder := metrics.New()

	pipeline := animation.New(animation.Deps{
		Tools:    cfg.runner(console.Logger.With("component", "toolchain")),
		Still:    cfg.stillEncoder(),
		Logger:   console.Logger.With("component", "pipeline"),
		Recorder: recorder,
	}, cfg.pipelineOptions())

	processor := &Processor{
		Console:     console,
		NumWorkers:  cfg.Workers,
		QueueSize:   cfg.QueueSize,
		OutputDir:   cfg.OutputDir,
		ClearOutput: cfg.ClearOutput,
		ConvertPNG:  cfg.ConvertPNG,
		Exclude:     []string{cfg.OutputDir},
		Pipeline:    pipeline,
		PNG:         cfg.pngEncoder(),
		SVG:         still.NewSVG(),
		Metrics:     recorder,
		MetricsFile: cfg.MetricsFile,
	}
	if cfg.WorkDir != "" {
		processor.Exclude = append(processor.Exclude, cfg.WorkDir)
	}

	err := processor.ProcessPath(ctx, cfg.InputPath)
	if !cfg.Watch {
		if err != nil {
			console.Error("Processing error: %v", err)
			return err
		}
		console.Success("All processing completed successfully")
		return nil
	}

	if err != nil {
		console.Warn("Initial batch finished with errors: %v", err)
	}

	root := cfg.InputPath
	if info, statErr := os.Stat(root); statErr == nil && !info.IsDir() {
		root = filepath.Dir(root)
	}
	return (&Watcher{Processor: processor, Console: console, Root: root}).Run(ctx)
}
