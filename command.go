package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"avifopt/animation"
	"avifopt/logger"
	"avifopt/still"
	"avifopt/toolchain"

	"github.com/spf13/cobra"
)

// Config is the full run configuration. Fields carry their TOML key and
// the AVIFOPT_-prefixed environment variable that may override it.
type Config struct {
	ConfigFile string `toml:"-"`
	EnvFile    string `toml:"-"`

	InputPath string `toml:"input" env:"INPUT"`
	OutputDir string `toml:"output" env:"OUTPUT"`
	WorkDir   string `toml:"work_dir" env:"WORK_DIR"`

	Workers   int `toml:"workers" env:"WORKERS"`
	QueueSize int `toml:"queue_size" env:"QUEUE_SIZE"`

	HighQuality  bool `toml:"high_quality" env:"HIGH_QUALITY"`
	MaxSize      int  `toml:"max_size" env:"MAX_SIZE"`
	Quality      int  `toml:"quality" env:"QUALITY"`
	QualityAlpha int  `toml:"quality_alpha" env:"QUALITY_ALPHA"`
	Speed        int  `toml:"speed" env:"SPEED"`
	PNG8Bit      bool `toml:"png_8bit" env:"PNG_8BIT"`
	ConvertPNG   bool `toml:"convert_png" env:"CONVERT_PNG"`
	ClearOutput  bool `toml:"clear_output" env:"CLEAR_OUTPUT"`

	ToolTimeout time.Duration `toml:"-" env:"TOOL_TIMEOUT"`
	// ToolTimeoutSeconds is the TOML spelling of ToolTimeout.
	ToolTimeoutSeconds int    `toml:"tool_timeout_seconds"`
	FFmpeg             string `toml:"ffmpeg" env:"FFMPEG"`
	FFprobe            string `toml:"ffprobe" env:"FFPROBE"`
	Avifenc            string `toml:"avifenc" env:"AVIFENC"`

	MetricsFile string `toml:"metrics_file" env:"METRICS_FILE"`
	Watch       bool   `toml:"watch" env:"WATCH"`
	LogJSON     bool   `toml:"log_json" env:"LOG_JSON"`
	Verbose     bool   `toml:"verbose" env:"VERBOSE"`
	NoColor     bool   `toml:"no_color" env:"NO_COLOR"`
}

var (
	Version    = "dev"
	BuildDate  = "unknown"
	GitCommit  = "unknown"
	QueueRatio = 3
)

const defaultConfigFile = "avifopt.toml"

func defaultConfig() *Config {
	cpu := runtime.NumCPU()
	return &Config{
		ConfigFile:   defaultConfigFile,
		EnvFile:      ".env",
		OutputDir:    "optimized_images",
		Workers:      cpu,
		QueueSize:    cpu * QueueRatio,
		Quality:      63,
		QualityAlpha: 80,
		Speed:        6,
		ClearOutput:  true,
		ToolTimeout:  toolchain.DefaultTimeout,
		FFmpeg:       "ffmpeg",
		FFprobe:      "ffprobe",
		Avifenc:      "avifenc",
	}
}

// newRootCommand wires the flags onto cfg. run receives the loaded,
// validated configuration.
func newRootCommand(cfg *Config, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "avifopt [flags] [file or directory]",
		Short: "Optimize images and re-encode animations as AVIF",
		Long: `avifopt converts JPEG, WebP, AVIF, GIF and MP4 assets to AVIF,
re-encoding animations at no more than 10 frames per second. PNGs are
recompressed (or converted with --convert-png) and SVGs are minified.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				newConsole(cfg, cmd).Box("avifopt version information", versionInfo())
				return nil
			}
			if len(args) == 1 {
				cfg.InputPath = args[0]
			}
			if err := loadConfig(cmd, cfg); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "TOML configuration file")
	f.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "dotenv file with AVIFOPT_ variables")
	f.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "Output directory")
	f.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Directory for temporary frame workspaces (default: system temp)")
	f.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "Number of concurrent workers")
	f.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Pending job queue capacity")
	f.BoolVar(&cfg.HighQuality, "high-quality", cfg.HighQuality, "Use the high quantizer tier for animations")
	f.IntVar(&cfg.MaxSize, "max-size", cfg.MaxSize, "Bound the longer side in pixels (0 keeps original size)")
	f.IntVarP(&cfg.Quality, "quality", "q", cfg.Quality, "Still image quality (0-100, higher is better)")
	f.IntVar(&cfg.QualityAlpha, "quality-alpha", cfg.QualityAlpha, "Still alpha channel quality (0-100)")
	f.IntVar(&cfg.Speed, "speed", cfg.Speed, "Still encoding speed (0-10, lower is better quality but slower)")
	f.BoolVar(&cfg.PNG8Bit, "png-8bit", cfg.PNG8Bit, "Reduce re-encoded PNGs to a 256 color palette")
	f.BoolVar(&cfg.ConvertPNG, "convert-png", cfg.ConvertPNG, "Convert PNGs to AVIF instead of recompressing them")
	f.BoolVar(&cfg.ClearOutput, "clear-output", cfg.ClearOutput, "Empty the output directory before the run")
	f.DurationVar(&cfg.ToolTimeout, "tool-timeout", cfg.ToolTimeout, "Deadline for each external tool invocation")
	f.StringVar(&cfg.FFmpeg, "ffmpeg", cfg.FFmpeg, "ffmpeg binary")
	f.StringVar(&cfg.FFprobe, "ffprobe", cfg.FFprobe, "ffprobe binary")
	f.StringVar(&cfg.Avifenc, "avifenc", cfg.Avifenc, "avifenc binary")
	f.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this textfile after each batch")
	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Keep running and convert new or changed files")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Log JSON lines instead of text")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Log debug details")
	f.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	f.BoolVar(&showVersion, "version", false, "Show version information")

	return cmd
}

func versionInfo() string {
	return fmt.Sprintf("Version: %s\nBuild date: %s\nGit commit: %s", Version, BuildDate, GitCommit)
}

func (cfg *Config) validate() error {
	var errs []error
	if cfg.InputPath == "" {
		errs = append(errs, errors.New("no input path specified"))
	}
	if cfg.OutputDir == "" {
		errs = append(errs, errors.New("output directory must not be empty"))
	}
	if cfg.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, errors.New("queue size must be at least 1"))
	}
	if cfg.MaxSize < 0 {
		errs = append(errs, errors.New("max size must not be negative"))
	}
	if cfg.Quality < 0 || cfg.Quality > 100 {
		errs = append(errs, errors.New("quality must be in range 0-100"))
	}
	if cfg.QualityAlpha < 0 || cfg.QualityAlpha > 100 {
		errs = append(errs, errors.New("alpha quality must be in range 0-100"))
	}
	if cfg.Speed < 0 || cfg.Speed > 10 {
		errs = append(errs, errors.New("encoding speed must be in range 0-10"))
	}
	if cfg.ToolTimeout <= 0 {
		errs = append(errs, errors.New("tool timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (cfg *Config) consoleOptions() *logger.RichLoggerOptions {
	opts := logger.DefaultOptions()
	opts.EnableJSON = cfg.LogJSON
	opts.EnableColors = !cfg.NoColor && os.Getenv("NO_COLOR") == ""
	if cfg.Verbose {
		opts.Level = slog.LevelDebug
	}
	return opts
}

func newConsole(cfg *Config, cmd *cobra.Command) *logger.Console {
	opts := cfg.consoleOptions()
	opts.Output = cmd.OutOrStdout()
	return logger.NewConsole(opts)
}

func (cfg *Config) runner(log *slog.Logger) *toolchain.Runner {
	r := toolchain.NewRunner(cfg.ToolTimeout, log)
	r.FFmpeg = cfg.FFmpeg
	r.FFprobe = cfg.FFprobe
	r.Avifenc = cfg.Avifenc
	return r
}

func (cfg *Config) pipelineOptions() animation.Options {
	return animation.Options{
		HighQuality: cfg.HighQuality,
		MaxSize:     cfg.MaxSize,
		WorkDir:     cfg.WorkDir,
	}
}

func (cfg *Config) stillEncoder() still.AVIF {
	return still.NewAVIF(cfg.Quality, cfg.QualityAlpha, cfg.Speed, cfg.MaxSize)
}

func (cfg *Config) pngEncoder() still.PNG {
	return still.PNG{EightBit: cfg.PNG8Bit, MaxSize: cfg.MaxSize}
}
