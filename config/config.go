/*
config.go - Server configuration

PURPOSE:
  One YAML file configures the server. Every field has a default so the
  file is optional; PANTRY_* environment variables override the file and
  command-line flags override both (see cmd/server).

EXAMPLE (pantry.yaml):
  server:
    port: 8080
    cors_origins: ["http://localhost:5173"]
  database:
    path: pantry.db
  suggestions:
    base_url: https://models.inference.ai.azure.com
    model: gpt-4o-mini
    timeout: 30s
  planner:
    timezone: Europe/Berlin
    leftover_expiry_days: 4
  sweeper:
    interval: 1h

ENVIRONMENT:
  PANTRY_PORT, PANTRY_DB, PANTRY_LLM_TOKEN, PANTRY_LLM_BASE_URL,
  PANTRY_LLM_MODEL, PANTRY_TIMEZONE
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Planner     PlannerConfig     `yaml:"planner"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SuggestionsConfig struct {
	Token       string        `yaml:"token"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Enabled reports whether a model can be built.
func (s SuggestionsConfig) Enabled() bool { return s.Token != "" }

type PlannerConfig struct {
	Timezone           string `yaml:"timezone"`
	LeftoverExpiryDays int    `yaml:"leftover_expiry_days"`
}

type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
		Database: DatabaseConfig{Path: "pantry.db"},
		Suggestions: SuggestionsConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
			MaxTokens:   2048,
			Timeout:     30 * time.Second,
		},
		Planner: PlannerConfig{LeftoverExpiryDays: 4},
		Sweeper: SweeperConfig{Enabled: true, Interval: time.Hour},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PANTRY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PANTRY_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("PANTRY_DB"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("PANTRY_LLM_TOKEN"); ok {
		c.Suggestions.Token = v
	}
	if v, ok := lookup("PANTRY_LLM_BASE_URL"); ok {
		c.Suggestions.BaseURL = v
	}
	if v, ok := lookup("PANTRY_LLM_MODEL"); ok {
		c.Suggestions.Model = v
	}
	if v, ok := lookup("PANTRY_TIMEZONE"); ok {
		c.Planner.Timezone = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Planner.LeftoverExpiryDays < 0 {
		return errors.New("planner.leftover_expiry_days must not be negative")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return errors.New("sweeper.interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the planner time zone; blank means the host's.
func (c Config) Location() (*time.Location, error) {
	if c.Planner.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Planner.Timezone)
	if err != nil {
		return nil, fmt.Errorf("planner.timezone: %w", err)
	}
	return loc, nil
}
