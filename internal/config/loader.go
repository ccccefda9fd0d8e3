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

// FamilyBudget configures the cache bound for one model family.
type FamilyBudget struct {
	Family   string `json:"family" yaml:"family" toml:"family"`
	MaxCount int    `json:"max_count" yaml:"max_count" toml:"max_count"`
	MaxMB    int64  `json:"max_mb" yaml:"max_mb" toml:"max_mb"`
}

// CORS holds the opt-in CORS settings for the HTTP server.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	RegistryFile string `json:"registry_file" yaml:"registry_file" toml:"registry_file"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	ContextSize       int   `json:"context_size" yaml:"context_size" toml:"context_size"`
	MemoryFloorMB     int64 `json:"memory_floor_mb" yaml:"memory_floor_mb" toml:"memory_floor_mb"`
	PreferPerformance bool  `json:"prefer_performance" yaml:"prefer_performance" toml:"prefer_performance"`
	// CrossFamilyEviction defaults to on when absent.
	CrossFamilyEviction *bool          `json:"cross_family_eviction" yaml:"cross_family_eviction" toml:"cross_family_eviction"`
	Budgets             []FamilyBudget `json:"budgets" yaml:"budgets" toml:"budgets"`

	MaxBodyMB          int64  `json:"max_body_mb" yaml:"max_body_mb" toml:"max_body_mb"`
	GenerateTimeoutSec int64  `json:"generate_timeout_sec" yaml:"generate_timeout_sec" toml:"generate_timeout_sec"`
	LogLevel           string `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORS               CORS   `json:"cors" yaml:"cors" toml:"cors"`
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
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
