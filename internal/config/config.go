package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	DefaultQuality      = 90
	DefaultTargetHeight = 1800
	DefaultMaxDimension = 1200
	DefaultCodec        = "webp"
	DefaultFileWorkers  = 2
	DefaultDBPath       = "./comicsqueeze.duckdb"
)

var (
	// Default number of per-image workers, set to CPU count.
	DefaultImageWorkers = runtime.NumCPU()
)

// ErrInvalidConfig marks settings rejected before any conversion starts.
// The whole run aborts on it; no pipeline is launched.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application settings.
type Config struct {
	Quality      int    `yaml:"quality"`
	TargetHeight int    `yaml:"target_height"`
	MaxDimension int    `yaml:"max_dimension"`
	Codec        string `yaml:"codec"`
	ImageWorkers int    `yaml:"image_workers"`
	FileWorkers  int    `yaml:"file_workers"`
	OutputDir    string `yaml:"output_dir"`
	DBPath       string `yaml:"db_path"`
}

// Default returns the settings used when no file or flag overrides them.
func Default() Config {
	return Config{
		Quality:      DefaultQuality,
		TargetHeight: DefaultTargetHeight,
		MaxDimension: DefaultMaxDimension,
		Codec:        DefaultCodec,
		ImageWorkers: DefaultImageWorkers,
		FileWorkers:  DefaultFileWorkers,
		DBPath:       DefaultDBPath,
	}
}

// LoadFile reads a YAML config file over the defaults. Fields absent from
// the file keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with. It is called
// once, ahead of any per-file work.
func (c Config) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidConfig, c.Quality)
	}
	if c.TargetHeight <= 0 {
		return fmt.Errorf("%w: target height must be positive, got %d", ErrInvalidConfig, c.TargetHeight)
	}
	// MaxDimension is carried for a future oversize-fallback policy; it is
	// validated but no resize path consults it yet.
	if c.MaxDimension <= 0 {
		return fmt.Errorf("%w: max dimension must be positive, got %d", ErrInvalidConfig, c.MaxDimension)
	}
	if c.Codec == "" {
		return fmt.Errorf("%w: codec must not be empty", ErrInvalidConfig)
	}
	return nil
}
