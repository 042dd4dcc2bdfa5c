package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the command line flags. Flags given on the
// command line override the file.
type Config struct {
	Input    string        `yaml:"input"`
	For      time.Duration `yaml:"for"`
	Out      string        `yaml:"out"`
	Budget   int64         `yaml:"budget"`
	Prefetch int           `yaml:"prefetch"`
	Workers  int           `yaml:"workers"`
	Scale    float64       `yaml:"scale"`
	Poster   int           `yaml:"poster"`
	Realtime bool          `yaml:"realtime"`
	Verbose  bool          `yaml:"verbose"`
}

func defaultConfig() Config {
	return Config{
		For:      10 * time.Second,
		Budget:   32 << 20,
		Prefetch: 3,
		Scale:    1,
	}
}

// loadConfig reads a YAML config on top of the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.For <= 0:
		return fmt.Errorf("for must be positive, got %v", c.For)
	case c.Scale <= 0:
		return fmt.Errorf("scale must be positive, got %v", c.Scale)
	case c.Prefetch < 0:
		return fmt.Errorf("prefetch must not be negative, got %d", c.Prefetch)
	case c.Poster < 0:
		return fmt.Errorf("poster must not be negative, got %d", c.Poster)
	}
	return nil
}
