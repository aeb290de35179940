package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envPrefix = "AVIFOPT_"

// loadConfig layers the configuration sources onto cfg, which already holds
// the flag defaults and any flags given on the command line. Precedence,
// lowest first: defaults, TOML file, dotenv file, environment, explicit
// flags.
func loadConfig(cmd *cobra.Command, cfg *Config) error {
	explicit := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	// A positional input counts as explicit too.
	input := cfg.InputPath

	_, configFlag := explicit["config"]
	envConfig := os.Getenv(envPrefix + "CONFIG")
	if !configFlag && envConfig != "" {
		cfg.ConfigFile = envConfig
	}
	if err := loadTOML(cfg, configFlag || envConfig != ""); err != nil {
		return err
	}

	if err := loadDotEnv(cfg.EnvFile, explicit["env-file"] != ""); err != nil {
		return err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	for name, value := range explicit {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	if input != "" {
		cfg.InputPath = input
	}

	return cfg.validate()
}

// loadTOML reads cfg.ConfigFile. A missing file is only an error when the
// path was asked for explicitly.
func loadTOML(cfg *Config, required bool) error {
	if cfg.ConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.ConfigFile)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("parse %s:%d:%d: %w", cfg.ConfigFile, row, col, err)
		}
		return fmt.Errorf("parse %s: %w", cfg.ConfigFile, err)
	}

	if cfg.ToolTimeoutSeconds > 0 {
		cfg.ToolTimeout = time.Duration(cfg.ToolTimeoutSeconds) * time.Second
	}
	return nil
}

// loadDotEnv exports the variables of path into the process environment
// without overriding variables that are already set.
func loadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
