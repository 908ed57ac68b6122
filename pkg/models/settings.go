package models

// Default agent settings applied when neither the goal space nor the
// task overrides a field.
const (
	DefaultModel        = "sonnet"
	DefaultMaxBudgetUSD = 5.0
	DefaultMaxTurns     = 50
)

// DefaultAllowedTools is the tool set granted to agents by default.
func DefaultAllowedTools() []string {
	return []string{"Bash", "Read", "Edit", "Write", "Grep", "Glob"}
}

// Settings are per-goal or per-task agent overrides. Nil fields mean
// "inherit"; the effective settings for a spawn are the goal space's
// settings overlaid field-wise by the task's.
type Settings struct {
	Model          *string  `json:"model,omitempty"`
	MaxBudgetUSD   *float64 `json:"max_budget_usd,omitempty"`
	MaxTurns       *int     `json:"max_turns,omitempty"`
	AllowedTools   []string `json:"allowed_tools,omitempty"`
	PermissionMode *string  `json:"permission_mode,omitempty"`
	SystemPrompt   *string  `json:"system_prompt,omitempty"`
}

// Merge returns a copy of s with every set field of override applied
// on top. Neither receiver nor argument is modified.
func (s Settings) Merge(override Settings) Settings {
	out := s
	if override.Model != nil {
		out.Model = override.Model
	}
	if override.MaxBudgetUSD != nil {
		out.MaxBudgetUSD = override.MaxBudgetUSD
	}
	if override.MaxTurns != nil {
		out.MaxTurns = override.MaxTurns
	}
	if override.AllowedTools != nil {
		out.AllowedTools = override.AllowedTools
	}
	if override.PermissionMode != nil {
		out.PermissionMode = override.PermissionMode
	}
	if override.SystemPrompt != nil {
		out.SystemPrompt = override.SystemPrompt
	}
	return out
}

// ResolvedModel returns the model to spawn with.
func (s Settings) ResolvedModel() string {
	if s.Model != nil && *s.Model != "" {
		return *s.Model
	}
	return DefaultModel
}

// ResolvedMaxBudgetUSD returns the budget ceiling to enforce.
func (s Settings) ResolvedMaxBudgetUSD() float64 {
	if s.MaxBudgetUSD != nil {
		return *s.MaxBudgetUSD
	}
	return DefaultMaxBudgetUSD
}

// ResolvedMaxTurns returns the turn limit to pass to the agent.
func (s Settings) ResolvedMaxTurns() int {
	if s.MaxTurns != nil {
		return *s.MaxTurns
	}
	return DefaultMaxTurns
}

// ResolvedAllowedTools returns the tool allowlist to pass to the agent.
func (s Settings) ResolvedAllowedTools() []string {
	if s.AllowedTools != nil {
		return s.AllowedTools
	}
	return DefaultAllowedTools()
}
