package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
anthropic:
  model: claude-sonnet-4-20250514
scheduler:
  max_concurrent_agents: 7
  step_mode: true
  child_wait: 30s
store:
  path: /tmp/taskloom.db
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Scheduler.MaxConcurrentAgents != 7 {
		t.Errorf("max agents = %d, want 7", cfg.Scheduler.MaxConcurrentAgents)
	}
	if !cfg.Scheduler.StepMode {
		t.Error("step mode not loaded")
	}
	if cfg.Scheduler.ChildWait != 30*time.Second {
		t.Errorf("child wait = %s, want 30s", cfg.Scheduler.ChildWait)
	}
	if cfg.Store.Path != "/tmp/taskloom.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	// Untouched keys keep their defaults.
	if cfg.Scheduler.PollInterval != 50*time.Millisecond {
		t.Errorf("poll interval = %s, want default 50ms", cfg.Scheduler.PollInterval)
	}
	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("refresh rate = %s, want default 100ms", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPath_ExpandsAPIKeyReference(t *testing.T) {
	t.Setenv("TASKLOOM_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
anthropic:
  api_key: ${TASKLOOM_TEST_KEY}
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("api key = %q, want expanded env value", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  max_concurrent_agents: 1\n")

	var mu sync.Mutex
	var latest *Config
	w, err := Watch(path, func(cfg *Config) {
		mu.Lock()
		latest = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("scheduler:\n  max_concurrent_agents: 9\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := latest
		mu.Unlock()
		if got != nil && got.Scheduler.MaxConcurrentAgents == 9 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("watcher never delivered the updated config")
}
