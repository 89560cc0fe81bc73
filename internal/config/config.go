// Package config loads engine configuration from JSON files, merging
// project settings over global settings over built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ResourcesConfig is the host resource budget waves are admitted against.
type ResourcesConfig struct {
	CPUCores               int     `json:"cpu_cores"`
	MemoryBudgetMB         float64 `json:"memory_budget_mb"`
	EstimatedMemoryPerTask float64 `json:"estimated_memory_per_task_mb"`
}

// ParametersConfig is the initial adaptive parameter set.
type ParametersConfig struct {
	MaxParallelTasks               int     `json:"max_parallel_tasks"`
	BatchSize                      int     `json:"batch_size"`
	ConfidenceThreshold            float64 `json:"confidence_threshold"`
	RetryBackoffFactor             float64 `json:"retry_backoff_factor"`
	ResourceOversubscriptionFactor float64 `json:"resource_oversubscription_factor"`
}

// EngineConfig is the top-level configuration.
type EngineConfig struct {
	Resources      ResourcesConfig  `json:"resources"`
	Parameters     ParametersConfig `json:"parameters"`
	SampleWindow   int              `json:"sample_window"`    // rolling metrics window capacity
	EventQueueSize int              `json:"event_queue_size"` // bounded engine event queue
	DatabasePath   string           `json:"database_path"`    // "" disables persistence
	MetricsAddr    string           `json:"metrics_addr"`     // "" disables the /metrics endpoint
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Resources: ResourcesConfig{
			CPUCores:               4,
			MemoryBudgetMB:         8192,
			EstimatedMemoryPerTask: 1024,
		},
		Parameters: ParametersConfig{
			MaxParallelTasks:               4,
			BatchSize:                      4,
			ConfidenceThreshold:            0.7,
			RetryBackoffFactor:             2.0,
			ResourceOversubscriptionFactor: 2.0,
		},
		SampleWindow:   64,
		EventQueueSize: 256,
		MetricsAddr:    "",
	}
}

// Load reads and merges configuration from global and project paths.
// Precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*EngineConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}
	return cfg, nil
}

// LoadDefault loads configuration from the conventional paths:
// ~/.waveplan/config.json then .waveplan/config.json under the cwd.
func LoadDefault() (*EngineConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	globalPath := filepath.Join(homeDir, ".waveplan", "config.json")
	projectPath := filepath.Join(".waveplan", "config.json")
	return Load(globalPath, projectPath)
}

// mergeConfigFile unmarshals a JSON file over the base config, so only the
// fields present in the file override. Missing files are skipped.
func mergeConfigFile(base *EngineConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration as indented JSON, creating parent
// directories as needed.
func Save(cfg *EngineConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
