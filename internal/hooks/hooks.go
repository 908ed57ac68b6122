// Package hooks generates and installs the agent-side hook
// configuration that reports lifecycle events back to the Conductor
// server.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// hookCommand is a single command hook entry.
type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookGroup struct {
	Hooks []hookCommand `json:"hooks"`
}

// Config is the settings document written into each worktree's
// .claude/settings.json.
type Config struct {
	Hooks map[string][]hookGroup `json:"hooks"`
}

// curlHook builds a command that forwards the hook's stdin payload to
// the given server endpoint.
func curlHook(port int, endpoint string) hookCommand {
	return hookCommand{
		Type: "command",
		Command: fmt.Sprintf(
			`curl -s -X POST http://localhost:%d%s -H 'Content-Type: application/json' -d "$(cat)"`,
			port, endpoint,
		),
	}
}

// GenerateConfig returns the hook configuration pointing at a Conductor
// server on the given port. The Stop hook fires when the agent finishes
// its turn; SubagentStop fires for nested agents.
func GenerateConfig(port int) *Config {
	return &Config{
		Hooks: map[string][]hookGroup{
			"Stop": {
				{Hooks: []hookCommand{curlHook(port, "/api/hooks/stop")}},
			},
			"SubagentStop": {
				{Hooks: []hookCommand{curlHook(port, "/api/hooks/subagent-stop")}},
			},
		},
	}
}

// InstallHooks writes the hook configuration to
// <worktreePath>/.claude/settings.json, creating the directory if needed.
func InstallHooks(worktreePath string, port int) error {
	claudeDir := filepath.Join(worktreePath, ".claude")
	if err := os.MkdirAll(claudeDir, 0755); err != nil {
		return fmt.Errorf("create .claude directory: %w", err)
	}

	data, err := json.MarshalIndent(GenerateConfig(port), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hooks config: %w", err)
	}

	settingsPath := filepath.Join(claudeDir, "settings.json")
	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("write hooks config: %w", err)
	}
	return nil
}
