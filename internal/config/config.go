// Package config loads the integration's uber_config.yaml. Credentials and
// hub connection details come from the environment, not this file.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Entities names the Home Assistant helper entities the integration writes
// to and watches. Names are without the domain prefix (input_text. etc.).
type Entities struct {
	Status         string `yaml:"status"`
	Progress       string `yaml:"progress"`
	DriverLocation string `yaml:"driver_location"`
	DriverName     string `yaml:"driver_name"`
	Vehicle        string `yaml:"vehicle"`
	Attributes     string `yaml:"attributes"`
	HasActiveRide  string `yaml:"has_active_ride"`
	RefreshButton  string `yaml:"refresh_button"`
	HistoryButton  string `yaml:"history_button"`
}

// Config is the uber_config.yaml structure.
type Config struct {
	APIPort      int      `yaml:"api_port"`
	WWWDir       string   `yaml:"www_dir"`
	RedirectURI  string   `yaml:"redirect_uri"`
	HistoryLimit int      `yaml:"history_limit"`
	Entities     Entities `yaml:"entities"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		APIPort:      8126,
		HistoryLimit: 10,
		Entities: Entities{
			Status:         "uber_ride_status",
			Progress:       "uber_ride_progress",
			DriverLocation: "uber_driver_location",
			DriverName:     "uber_driver_name",
			Vehicle:        "uber_vehicle",
			Attributes:     "uber_ride_attributes",
			HasActiveRide:  "uber_has_active_ride",
			RefreshButton:  "uber_refresh_status",
			HistoryButton:  "uber_get_ride_history",
		},
	}
}

// Load reads the config file at path, merging it over defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("No config file found, using defaults", zap.String("path", path))
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded", zap.String("path", path))
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api_port %d", c.APIPort)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("invalid history_limit %d", c.HistoryLimit)
	}
	e := &c.Entities
	for _, name := range []string{
		e.Status, e.Progress, e.DriverLocation, e.DriverName,
		e.Vehicle, e.Attributes, e.HasActiveRide, e.RefreshButton, e.HistoryButton,
	} {
		if name == "" {
			return fmt.Errorf("entity names must not be empty")
		}
	}
	return nil
}

// Env holds the settings read from the environment.
type Env struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HAURL        string
	HAToken      string
	ReadOnly     bool
}

// LoadEnv reads the environment variables the integration needs. Client
// credentials are required; the hub connection is optional (the command API
// still works without it).
func LoadEnv() (*Env, error) {
	env := &Env{
		ClientID:     os.Getenv("UBER_CLIENT_ID"),
		ClientSecret: os.Getenv("UBER_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("UBER_REDIRECT_URI"),
		HAURL:        os.Getenv("HA_URL"),
		HAToken:      os.Getenv("HA_TOKEN"),
		ReadOnly:     os.Getenv("READ_ONLY") == "true",
	}
	if env.ClientID == "" || env.ClientSecret == "" {
		return nil, fmt.Errorf("UBER_CLIENT_ID and UBER_CLIENT_SECRET must be set")
	}
	return env, nil
}
