// Package stream parses the newline-delimited JSON records an agent
// subprocess writes to stdout and maps them to persisted agent events.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conductor-hq/conductor/pkg/models"
)

// Kind discriminates the parsed event variants.
type Kind string

const (
	KindToolUse     Kind = "tool_use"
	KindToolResult  Kind = "tool_result"
	KindTextDelta   Kind = "text_delta"
	KindTextMessage Kind = "text_message"
	KindAPIRequest  Kind = "api_request"
	KindError       Kind = "error"
	KindResult      Kind = "result"
	KindSystem      Kind = "system"
)

// Event is one recognized record from the agent's output stream.
// Which fields are meaningful depends on Kind.
type Event struct {
	Kind     Kind
	ToolName string
	// Summary is the human-readable tool-use description.
	Summary string
	// Success is meaningful for tool results.
	Success bool
	// Text carries deltas, messages, tool-result output, error and
	// system messages, and the final result text.
	Text         string
	SessionID    string
	Model        string
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
}

// rawRecord is the superset of fields across all recognized records.
// The message field is an object for assistant records but a plain
// string for system and error records, so it is decoded lazily per
// discriminator.
type rawRecord struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	Delta   *struct {
		Text string `json:"text"`
	} `json:"delta"`
	SessionID    string          `json:"session_id"`
	Result       string          `json:"result"`
	CostUSD      *float64        `json:"cost_usd"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	Usage        *usage          `json:"usage"`
	ToolName     string          `json:"tool_name"`
	Name         string          `json:"name"`
	IsError      bool            `json:"is_error"`
	Output       string          `json:"output"`
	Content      json.RawMessage `json:"content"`
	Error        string          `json:"error"`
	Model        string          `json:"model"`
}

// messageString decodes a message field carrying a plain string.
// Anything else (absent, object, malformed) yields "".
func messageString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

type contentBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Text  string          `json:"text"`
	Input json.RawMessage `json:"input"`
}

type usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ParseLine parses one line of agent output. It is total: malformed
// JSON, unknown types and empty lines all yield nil, never an error.
func ParseLine(line string) *Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var rec rawRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil
	}

	switch rec.Type {
	case "assistant":
		return parseAssistant(&rec)
	case "content_block_delta":
		if rec.Delta == nil || rec.Delta.Text == "" {
			return nil
		}
		return &Event{Kind: KindTextDelta, Text: rec.Delta.Text}
	case "result":
		return parseResult(&rec)
	case "tool_result", "tool_output":
		return parseToolResult(&rec)
	case "api_request":
		return parseAPIRequest(&rec)
	case "error":
		msg := rec.Error
		if msg == "" {
			msg = messageString(rec.Message)
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return &Event{Kind: KindError, Text: msg}
	case "system":
		msg := messageString(rec.Message)
		if msg == "" {
			return nil
		}
		return &Event{Kind: KindSystem, Text: msg}
	default:
		return nil
	}
}

// parseAssistant returns the message's first tool_use block, or the
// first non-empty text block when there is no tool use.
func parseAssistant(rec *rawRecord) *Event {
	var msg struct {
		Content []contentBlock `json:"content"`
	}
	if len(rec.Message) == 0 || json.Unmarshal(rec.Message, &msg) != nil {
		return nil
	}
	for _, block := range msg.Content {
		if block.Type == "tool_use" && block.Name != "" {
			return &Event{
				Kind:     KindToolUse,
				ToolName: block.Name,
				Summary:  summarizeToolInput(block.Name, block.Input),
			}
		}
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return &Event{Kind: KindTextMessage, Text: block.Text}
		}
	}
	return nil
}

func parseResult(rec *rawRecord) *Event {
	e := &Event{
		Kind:      KindResult,
		SessionID: rec.SessionID,
		Text:      rec.Result,
	}
	if rec.CostUSD != nil {
		e.CostUSD = *rec.CostUSD
	} else if rec.TotalCostUSD != nil {
		e.CostUSD = *rec.TotalCostUSD
	}
	if rec.Usage != nil {
		e.InputTokens = rec.Usage.InputTokens
		e.OutputTokens = rec.Usage.OutputTokens
	}
	return e
}

func parseToolResult(rec *rawRecord) *Event {
	name := rec.ToolName
	if name == "" {
		name = rec.Name
	}
	output := rec.Output
	if output == "" && len(rec.Content) > 0 {
		// content may be a plain string
		var s string
		if err := json.Unmarshal(rec.Content, &s); err == nil {
			output = s
		}
	}
	return &Event{
		Kind:     KindToolResult,
		ToolName: name,
		Success:  !rec.IsError,
		Text:     truncate(output, 200),
	}
}

func parseAPIRequest(rec *rawRecord) *Event {
	e := &Event{
		Kind:  KindAPIRequest,
		Model: rec.Model,
	}
	if rec.CostUSD != nil {
		e.CostUSD = *rec.CostUSD
	} else if rec.TotalCostUSD != nil {
		e.CostUSD = *rec.TotalCostUSD
	}
	if rec.Usage != nil {
		e.InputTokens = rec.Usage.InputTokens
		e.OutputTokens = rec.Usage.OutputTokens
	}
	return e
}

// summarizeToolInput renders a tool invocation as a short description.
// Missing input fields render as "?".
func summarizeToolInput(name string, input json.RawMessage) string {
	var fields map[string]any
	json.Unmarshal(input, &fields)

	str := func(key string) string {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
		return "?"
	}

	switch name {
	case "Read":
		return "Reading " + str("file_path")
	case "Edit":
		return "Editing " + str("file_path")
	case "Write":
		return "Writing " + str("file_path")
	case "Bash":
		return "Running: " + truncate(str("command"), 80)
	case "Grep":
		return fmt.Sprintf("Searching for '%s'", str("pattern"))
	case "Glob":
		return fmt.Sprintf("Finding files matching '%s'", str("pattern"))
	default:
		return "Using " + name
	}
}

// truncate cuts s to max characters, appending "..." when it was longer.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ToAgentEvent maps a parsed event to the AgentEvent row that should
// be stored for the given run. rawLine is kept alongside for debugging.
func ToAgentEvent(e *Event, runID, rawLine string) *models.AgentEvent {
	row := &models.AgentEvent{
		AgentRunID: runID,
		RawJSON:    rawLine,
	}

	switch e.Kind {
	case KindToolUse:
		row.EventType = "tool_call"
		row.ToolName = e.ToolName
		row.Summary = e.Summary
	case KindToolResult:
		row.EventType = "tool_result"
		row.ToolName = e.ToolName
		prefix := "[OK] "
		if !e.Success {
			prefix = "[ERROR] "
		}
		row.Summary = prefix + e.Text
	case KindTextDelta:
		row.EventType = "text_output"
		row.Summary = truncate(e.Text, 100)
	case KindTextMessage:
		row.EventType = "text_output"
		row.Summary = truncate(e.Text, 200)
	case KindAPIRequest:
		row.EventType = "cost_update"
		row.Summary = fmt.Sprintf("API call: %s (in=%d, out=%d, $%.4f)",
			e.Model, e.InputTokens, e.OutputTokens, e.CostUSD)
		row.CostDeltaUSD = e.CostUSD
	case KindError:
		row.EventType = "error"
		row.Summary = e.Text
	case KindResult:
		row.EventType = "result"
		row.Summary = fmt.Sprintf("Completed: %s (in=%d, out=%d)",
			truncate(e.Text, 200), e.InputTokens, e.OutputTokens)
		row.CostDeltaUSD = e.CostUSD
	case KindSystem:
		row.EventType = "system"
		row.Summary = e.Text
	}

	return row
}
