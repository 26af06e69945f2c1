// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quantbt-go/internal/strategy"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Data selects and locates the price-history provider.
type Data struct {
	Provider string `yaml:"provider"` // "csv" or "parquet"
	Dir      string `yaml:"dir"`
}

// Strategy specifies which strategy variant is active along with the
// per-variant parameter blocks.
type Strategy struct {
	Kind   string          `yaml:"kind"`
	Params strategy.Params `yaml:"params"`
}

// Backtest captures run settings: universe, capital, date range, and where
// to record results.
type Backtest struct {
	Symbols        []string `yaml:"symbols"`
	InitialCapital float64  `yaml:"initial_capital"`
	Start          string   `yaml:"start"` // YYYY-MM-DD, empty = open-ended
	End            string   `yaml:"end"`
	ResultsPath    string   `yaml:"results_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Data     Data     `yaml:"data"`
	Strategy Strategy `yaml:"strategy"`
	Backtest Backtest `yaml:"backtest"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
