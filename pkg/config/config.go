// Package config loads the catalog configuration file and applies defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigFile = "catalog.yaml"

// Config is the full catalog configuration.
type Config struct {
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen"`
	// BaseURL is where the dispatcher replays task URLs. Defaults to the
	// local listen address.
	BaseURL string `yaml:"baseUrl"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Github struct {
		// Token supports ${VAR} expansion so the file can reference
		// GITHUB_TOKEN without embedding it.
		Token string `yaml:"token"`
	} `yaml:"github"`

	Registry struct {
		Base  string `yaml:"base"`
		Unpkg string `yaml:"unpkg"`
	} `yaml:"registry"`

	Analysis struct {
		Project       string `yaml:"project"`
		RequestTopic  string `yaml:"requestTopic"`
		ResponseTopic string `yaml:"responseTopic"`
	} `yaml:"analysis"`

	Dispatcher struct {
		Concurrency  int           `yaml:"concurrency"`
		PollInterval time.Duration `yaml:"pollInterval"`
		Backoff      time.Duration `yaml:"backoff"`
	} `yaml:"dispatcher"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "catalog.db"
	}
	if c.Registry.Base == "" {
		c.Registry.Base = "https://registry.npmjs.org"
	}
	if c.Registry.Unpkg == "" {
		c.Registry.Unpkg = "https://unpkg.com"
	}
	if c.Analysis.RequestTopic == "" {
		c.Analysis.RequestTopic = "analysis-requests"
	}
	if c.Analysis.ResponseTopic == "" {
		c.Analysis.ResponseTopic = "analysis-responses"
	}
	if c.Dispatcher.Concurrency == 0 {
		c.Dispatcher.Concurrency = 4
	}
	if c.Dispatcher.PollInterval == 0 {
		c.Dispatcher.PollInterval = 500 * time.Millisecond
	}
	if c.Dispatcher.Backoff == 0 {
		c.Dispatcher.Backoff = 5 * time.Second
	}
	c.Github.Token = os.ExpandEnv(c.Github.Token)
}

// Load reads the configuration file at path, falling back to defaults when no
// file exists and path was not set explicitly.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = ConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.applyDefaults()
	return &config, nil
}
