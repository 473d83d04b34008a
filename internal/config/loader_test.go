package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/benfinklea/nofx/internal/scheduler"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.AutoAssignTasks() {
		t.Error("auto-assign should default on")
	}
	if cfg.Strategy() != scheduler.StrategyBalanced {
		t.Errorf("strategy = %s, want balanced", cfg.Strategy())
	}
	if cfg.MaxReassignmentsPerCycle() != 3 {
		t.Errorf("maxReassignments = %d, want 3", cfg.MaxReassignmentsPerCycle())
	}
	if cfg.UtilizationThreshold() != 80 {
		t.Errorf("threshold = %v, want 80", cfg.UtilizationThreshold())
	}
	if cfg.Server.Addr != ":8390" {
		t.Errorf("addr = %s, want :8390", cfg.Server.Addr)
	}
}

func TestLoadMissingFilesSkipped(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("Load with missing files: %v", err)
	}
	if cfg.Server.Addr != ":8390" {
		t.Errorf("addr = %s, want default", cfg.Server.Addr)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.json", "{not json")

	if _, err := Load("", path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", `{
		"server": {"addr": ":9000", "log_level": "debug"},
		"scheduler": {"auto_assign": false}
	}`)
	project := writeConfig(t, dir, "project.json", `{
		"server": {"addr": ":9100"}
	}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9100" {
		t.Errorf("addr = %s, want project override :9100", cfg.Server.Addr)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %s, want global debug", cfg.Server.LogLevel)
	}
	if cfg.AutoAssignTasks() {
		t.Error("auto_assign = true, want global false")
	}
}

func TestStrategyParsing(t *testing.T) {
	tests := []struct {
		raw  string
		want scheduler.Strategy
	}{
		{"balanced", scheduler.StrategyBalanced},
		{"performance", scheduler.StrategyPerformance},
		{"capacity", scheduler.StrategyCapacity},
		{"unknown", scheduler.StrategyBalanced},
		{"", scheduler.StrategyBalanced},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Scheduler.LoadBalancing.Strategy = tt.raw
		if got := cfg.Strategy(); got != tt.want {
			t.Errorf("Strategy(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestSettingsFloors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.LoadBalancing.MaxReassignmentsPerCycle = -1
	cfg.Scheduler.LoadBalancing.UtilizationThreshold = 0

	if got := cfg.MaxReassignmentsPerCycle(); got != 3 {
		t.Errorf("maxReassignments = %d, want floor 3", got)
	}
	if got := cfg.UtilizationThreshold(); got != 80 {
		t.Errorf("threshold = %v, want floor 80", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":9999"
	cfg.Journal.Path = filepath.Join(dir, "journal.db")

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Server.Addr != ":9999" {
		t.Errorf("addr = %s, want :9999", loaded.Server.Addr)
	}
	if loaded.Journal.Path != cfg.Journal.Path {
		t.Errorf("journal path = %s, want %s", loaded.Journal.Path, cfg.Journal.Path)
	}
}
