// Package config holds all stratum configuration with defaults suitable
// for a single-node deployment. The serve command applies environment
// overrides on top.
package config

import (
	"fmt"
	"time"
)

// Config holds all stratum configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Search    SearchConfig    `toml:"search"`
	Auth      AuthConfig      `toml:"auth"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	OllamaURL string `toml:"ollama_url"`
	Model     string `toml:"model"`
	// AutoLinkThreshold is the minimum similarity at which the background
	// job materializes a similarity relationship between two memories.
	AutoLinkThreshold float64 `toml:"auto_link_threshold"`
}

type LifecycleConfig struct {
	// SweepInterval bounds how often the background sweep runs and how
	// often any single memory is re-evaluated.
	SweepInterval time.Duration `toml:"sweep_interval"`
	// SweepBatch caps how many memories one sweep pass evaluates.
	SweepBatch int `toml:"sweep_batch"`
	// MaxPerEntity caps live memories per owning entity; 0 disables the
	// quota.
	MaxPerEntity int `toml:"max_per_entity"`
}

type SearchConfig struct {
	SemanticWeight float64       `toml:"semantic_weight"`
	TextWeight     float64       `toml:"text_weight"`
	DefaultLimit   int           `toml:"default_limit"`
	DefaultBudget  time.Duration `toml:"default_budget"`
	// MaxCandidates caps how many rows a single tier scan considers
	// before ranking.
	MaxCandidates int `toml:"max_candidates"`
}

type AuthConfig struct {
	// Tokens maps bearer tokens to entity ids. Empty means the server
	// runs open on localhost; production deployments resolve tokens
	// through an external identity service instead.
	Tokens map[string]string `toml:"tokens"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37901,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			OllamaURL:         "http://localhost:11434",
			Model:             "nomic-embed-text",
			AutoLinkThreshold: 0.85,
		},
		Lifecycle: LifecycleConfig{
			SweepInterval: time.Hour,
			SweepBatch:    500,
			MaxPerEntity:  0,
		},
		Search: SearchConfig{
			SemanticWeight: 0.6,
			TextWeight:     0.4,
			DefaultLimit:   20,
			DefaultBudget:  2 * time.Second,
			MaxCandidates:  1000,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
