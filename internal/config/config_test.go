package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFilesYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "no-global.json"), filepath.Join(dir, "no-project.json"))
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadMergesPartialOverrides(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"parameters": {"max_parallel_tasks": 8},
		"database_path": "/var/lib/waveplan/engine.db"
	}`)
	project := writeFile(t, dir, "project.json", `{
		"parameters": {"confidence_threshold": 0.8},
		"sample_window": 128
	}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Parameters.MaxParallelTasks != 8 {
		t.Errorf("max parallel = %d, want 8 from global", cfg.Parameters.MaxParallelTasks)
	}
	if cfg.Parameters.ConfidenceThreshold != 0.8 {
		t.Errorf("threshold = %v, want 0.8 from project", cfg.Parameters.ConfidenceThreshold)
	}
	if cfg.SampleWindow != 128 {
		t.Errorf("sample window = %d, want 128 from project", cfg.SampleWindow)
	}
	if cfg.DatabasePath != "/var/lib/waveplan/engine.db" {
		t.Errorf("database path = %q, want the global value", cfg.DatabasePath)
	}
	// Untouched fields keep their defaults.
	if cfg.Parameters.BatchSize != 4 || cfg.Resources.CPUCores != 4 {
		t.Errorf("defaults lost in merge: %+v", cfg)
	}
}

func TestProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{"parameters": {"batch_size": 2}}`)
	project := writeFile(t, dir, "project.json", `{"parameters": {"batch_size": 6}}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Parameters.BatchSize != 6 {
		t.Errorf("batch = %d, want the project value 6", cfg.Parameters.BatchSize)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{"parameters":`)
	if _, err := Load(bad, ""); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Parameters.MaxParallelTasks = 12
	cfg.MetricsAddr = ":9090"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}
