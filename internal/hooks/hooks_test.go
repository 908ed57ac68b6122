package hooks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateConfig_Structure(t *testing.T) {
	cfg := GenerateConfig(3001)

	for _, name := range []string{"Stop", "SubagentStop"} {
		groups, ok := cfg.Hooks[name]
		if !ok {
			t.Fatalf("missing %s hook", name)
		}
		if len(groups) != 1 || len(groups[0].Hooks) != 1 {
			t.Fatalf("%s: unexpected shape %+v", name, groups)
		}
		if groups[0].Hooks[0].Type != "command" {
			t.Errorf("%s hook type = %q, want command", name, groups[0].Hooks[0].Type)
		}
	}
}

func TestGenerateConfig_Commands(t *testing.T) {
	cfg := GenerateConfig(3001)

	stop := cfg.Hooks["Stop"][0].Hooks[0].Command
	if !strings.Contains(stop, "curl") || !strings.Contains(stop, "POST") {
		t.Errorf("stop command = %q, want curl POST", stop)
	}
	if !strings.Contains(stop, "/api/hooks/stop") {
		t.Errorf("stop command = %q, want stop endpoint", stop)
	}

	sub := cfg.Hooks["SubagentStop"][0].Hooks[0].Command
	if !strings.Contains(sub, "/api/hooks/subagent-stop") {
		t.Errorf("subagent command = %q, want subagent-stop endpoint", sub)
	}
}

func TestGenerateConfig_UsesPort(t *testing.T) {
	for _, port := range []int{3000, 3001, 8080, 4567} {
		cfg := GenerateConfig(port)
		data, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		want := "localhost:" + itoa(port)
		if !strings.Contains(string(data), want) {
			t.Errorf("config for port %d does not contain %q", port, want)
		}
	}
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestInstallHooks(t *testing.T) {
	worktree := t.TempDir()

	if err := InstallHooks(worktree, 9999); err != nil {
		t.Fatalf("InstallHooks failed: %v", err)
	}

	path := filepath.Join(worktree, ".claude", "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("settings.json not written: %v", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("settings.json is not valid JSON: %v", err)
	}
	if !strings.Contains(string(data), "localhost:9999") {
		t.Error("settings.json does not reference the server port")
	}
}

func TestInstallHooks_Overwrites(t *testing.T) {
	worktree := t.TempDir()

	if err := InstallHooks(worktree, 3001); err != nil {
		t.Fatalf("first install failed: %v", err)
	}
	if err := InstallHooks(worktree, 4000); err != nil {
		t.Fatalf("second install failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(worktree, ".claude", "settings.json"))
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if strings.Contains(string(data), "localhost:3001") {
		t.Error("old port still present after reinstall")
	}
}
