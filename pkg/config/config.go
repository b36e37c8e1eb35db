// Package config loads the pipeline server's settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the pipeline server.
// Zero values mean "unspecified" and are replaced by flag defaults in main.
type Config struct {
	GRPCListen      string `json:"grpc_listen" yaml:"grpc_listen" toml:"grpc_listen"`
	HTTPListen      string `json:"http_listen" yaml:"http_listen" toml:"http_listen"`
	MaxMessageBytes int    `json:"max_message_bytes" yaml:"max_message_bytes" toml:"max_message_bytes"`
	MaxUploadBytes  int64  `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes"`

	// Model is loaded at startup when set: a local path, gs:// or http(s):// reference.
	Model    string `json:"model" yaml:"model" toml:"model"`
	CacheDir string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`

	Window    WindowConfig    `json:"window" yaml:"window" toml:"window"`
	Tokenizer TokenizerConfig `json:"tokenizer" yaml:"tokenizer" toml:"tokenizer"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" toml:"embedding"`
}

// WindowConfig bounds the work done by one compute call.
type WindowConfig struct {
	MaxCost   int64 `json:"max_cost" yaml:"max_cost" toml:"max_cost"`
	MaxLayers int   `json:"max_layers" yaml:"max_layers" toml:"max_layers"`
}

type TokenizerConfig struct {
	// Kind is "idlist" or "vocab".
	Kind         string `json:"kind" yaml:"kind" toml:"kind"`
	VocabPath    string `json:"vocab_path" yaml:"vocab_path" toml:"vocab_path"`
	UnknownToken string `json:"unknown_token" yaml:"unknown_token" toml:"unknown_token"`
	MaxTokens    int    `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
}

type EmbeddingConfig struct {
	Parallelism int `json:"parallelism" yaml:"parallelism" toml:"parallelism"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no server could run with.
func (c Config) Validate() error {
	if c.MaxMessageBytes < 0 || c.MaxUploadBytes < 0 {
		return fmt.Errorf("message and upload limits must not be negative")
	}
	if c.Window.MaxCost < 0 || c.Window.MaxLayers < 0 {
		return fmt.Errorf("window limits must not be negative")
	}
	if c.Embedding.Parallelism < 0 {
		return fmt.Errorf("embedding parallelism must not be negative")
	}
	switch c.Tokenizer.Kind {
	case "", "idlist":
	case "vocab":
		if c.Tokenizer.VocabPath == "" {
			return fmt.Errorf("vocab tokenizer needs vocab_path")
		}
	default:
		return fmt.Errorf("unknown tokenizer kind %q", c.Tokenizer.Kind)
	}
	return nil
}
