// Package config loads service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
		Docs         bool          `yaml:"docs"`
	} `yaml:"server"`
	Artifacts struct {
		Dir             string        `yaml:"dir"`
		ModelName       string        `yaml:"model_name"`
		VectorizerName  string        `yaml:"vectorizer_name"`
		Version         string        `yaml:"version"`
		BaseURL         string        `yaml:"base_url"`
		DownloadTimeout time.Duration `yaml:"download_timeout"`
		IndexPath       string        `yaml:"index_path"`
		Watch           bool          `yaml:"watch"`
	} `yaml:"artifacts"`
	Model struct {
		Type   string            `yaml:"type"`
		Labels map[string]string `yaml:"labels"`
	} `yaml:"model"`
	Preprocess struct {
		StripAccents    bool `yaml:"strip_accents"`
		RemoveStopwords bool `yaml:"remove_stopwords"`
		MinTokenLen     int  `yaml:"min_token_len"`
	} `yaml:"preprocess"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	// BuildVersion is reported by /health. Set from GIT_COMMIT only.
	BuildVersion string `yaml:"-"`
}

// Default returns the configuration used when no file or env var overrides a field.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.MaxBodyBytes = 1 << 20

	cfg.Artifacts.Dir = "./model"
	cfg.Artifacts.ModelName = "model-{version}.json"
	cfg.Artifacts.VectorizerName = "vectorizer-{version}.json"
	cfg.Artifacts.Version = "latest"
	cfg.Artifacts.DownloadTimeout = 60 * time.Second

	cfg.Model.Type = "linear"
	cfg.Model.Labels = map[string]string{"0": "neg", "1": "pos"}

	cfg.Preprocess.StripAccents = true
	cfg.Preprocess.RemoveStopwords = true
	cfg.Preprocess.MinTokenLen = 2

	cfg.Cache.Size = 1024

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28

	cfg.BuildVersion = "dev"
	return cfg
}

// Load reads the YAML file at path over the defaults and then applies env
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file location, honoring CONFIG_PATH.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("HOST", &c.Server.Host)
	str("MODEL_VERSION", &c.Artifacts.Version)
	str("MODEL_BASE_URL", &c.Artifacts.BaseURL)
	str("MODEL_PATH", &c.Artifacts.Dir)
	str("MODEL_NAME", &c.Artifacts.ModelName)
	str("VECTORIZER_NAME", &c.Artifacts.VectorizerName)
	str("ARTIFACT_INDEX", &c.Artifacts.IndexPath)
	str("GIT_COMMIT", &c.BuildVersion)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("ENABLE_DOCS"); ok && v != "" {
		docs, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENABLE_DOCS %q: %w", v, err)
		}
		c.Server.Docs = docs
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server max_body_bytes must be positive")
	}
	if strings.TrimSpace(c.Artifacts.Dir) == "" {
		return errors.New("artifacts dir is required")
	}
	if c.Artifacts.ModelName == "" || c.Artifacts.VectorizerName == "" {
		return errors.New("artifact file names are required")
	}
	if c.Artifacts.BaseURL != "" && c.Artifacts.Version == "" {
		return errors.New("model version is required when base_url is set")
	}
	switch c.Model.Type {
	case "linear", "decision_tree":
	default:
		return fmt.Errorf("unsupported model type %q", c.Model.Type)
	}
	if c.Cache.Size < 0 {
		return errors.New("cache size must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
