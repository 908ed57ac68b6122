// Package decompose turns a goal description into a task list by
// running an agent over the goal's repository.
package decompose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/stream"
	"github.com/conductor-hq/conductor/pkg/models"
)

// TaskDraft is one proposed task from a decomposition, before it is
// persisted. DependsOn holds "__index_N" placeholders referring to
// positions in the same draft list; ResolveDependencies maps them to
// real task IDs once tasks are created.
type TaskDraft struct {
	Title       string
	Description string
	Priority    int
	DependsOn   []string
	Settings    models.Settings
}

const promptTemplate = `You are a task decomposition engine. Analyze the codebase and break this goal into tasks.

Goal: %s

You MUST respond with ONLY a JSON object (no markdown, no explanation, no surrounding text).
The JSON must match this exact structure:

{"tasks": [
  {"title": "short imperative name", "description": "detailed requirements", "depends_on": []},
  {"title": "another task", "description": "details", "depends_on": [0]}
]}

Rules for decomposition:
- Maximize parallelism: tasks should be independent where possible
- Minimize file overlap: tasks touching the same files should depend on each other
- Include a test task for each implementation task
- Each task should be completable by a single agent in one session
- Be specific about files, functions, and expected behavior in each description
- depends_on uses 0-based indices into this same array

Output ONLY the JSON object. No other text.`

const outputSchema = `{
  "type": "object",
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "description": {"type": "string"},
          "depends_on": {"type": "array", "items": {"type": "integer"}}
        },
        "required": ["title", "description", "depends_on"]
      }
    }
  },
  "required": ["tasks"]
}`

const systemPrompt = "IMPORTANT: Your final response MUST be ONLY a valid JSON object matching the provided schema. Do not include any markdown, explanation, or surrounding text. Output raw JSON only."

// Decompose runs the agent against the repository and returns the
// proposed tasks. Progress is broadcast as OperationUpdate events so
// subscribers can watch the agent explore the codebase.
func Decompose(ctx context.Context, description, repoPath string, b *bus.Bus, operationID, goalSpaceID string) ([]TaskDraft, error) {
	cmd := exec.CommandContext(ctx, "claude",
		"-p", fmt.Sprintf(promptTemplate, description),
		"--verbose",
		"--output-format", "stream-json",
		"--json-schema", outputSchema,
		"--max-turns", "15",
		"--append-system-prompt", systemPrompt,
		"--allowedTools", "Read",
		"--allowedTools", "Grep",
		"--allowedTools", "Glob",
	)
	cmd.Dir = repoPath

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn claude for decomposition: %w", err)
	}

	stderrCh := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(stderr)
		stderrCh <- string(data)
	}()

	progress := func(message string) {
		b.Publish(bus.OperationUpdate{
			OperationID:   operationID,
			GoalSpaceID:   goalSpaceID,
			OperationType: "decompose",
			Status:        "running",
			Message:       message,
		})
	}

	var resultLine string
	var structured json.RawMessage

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		parsed := stream.ParseLine(line)
		if parsed == nil {
			// The result record can carry payloads our parser skips;
			// keep the raw line for task extraction anyway.
			if strings.Contains(line, `"type":"result"`) || strings.Contains(line, `"type": "result"`) {
				resultLine = line
			}
			continue
		}

		switch parsed.Kind {
		case stream.KindToolUse:
			// With a JSON schema the agent emits its structured answer
			// as a StructuredOutput tool use rather than result text.
			if parsed.ToolName == "StructuredOutput" {
				if input := structuredOutputInput(line); input != nil {
					structured = input
				}
				progress("Generating task decomposition...")
			} else {
				progress(parsed.Summary)
			}
		case stream.KindTextMessage:
			text := parsed.Text
			if len(text) > 120 {
				text = text[:120] + "..."
			}
			progress(text)
		case stream.KindError:
			progress("Error: " + parsed.Text)
		case stream.KindResult:
			resultLine = line
		}
	}

	waitErr := cmd.Wait()
	stderrOut := <-stderrCh
	if waitErr != nil {
		return nil, fmt.Errorf("claude decomposition failed (%v): %s", waitErr, strings.TrimSpace(stderrOut))
	}

	if structured != nil {
		return ParseOutput(string(structured))
	}
	if resultLine == "" {
		return nil, fmt.Errorf("no result event received from claude stream")
	}
	return ParseOutput(resultLine)
}

// structuredOutputInput pulls the input payload of a StructuredOutput
// tool-use block out of a raw stream line.
func structuredOutputInput(line string) json.RawMessage {
	var rec struct {
		Message struct {
			Content []struct {
				Name  string          `json:"name"`
				Input json.RawMessage `json:"input"`
			} `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil
	}
	for _, block := range rec.Message.Content {
		if block.Name == "StructuredOutput" && len(block.Input) > 0 {
			return block.Input
		}
	}
	return nil
}

type rawTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DependsOn   []int  `json:"depends_on"`
}

// ParseOutput extracts task drafts from decomposition output. The
// output may be the schema object itself, or a result envelope whose
// "result" field is an object, a JSON string, or prose with JSON
// embedded in it.
func ParseOutput(output string) ([]TaskDraft, error) {
	var root map[string]any
	if err := json.Unmarshal([]byte(output), &root); err != nil {
		return nil, fmt.Errorf("parse decomposition output as JSON: %w", err)
	}

	if isErr, ok := root["is_error"].(bool); ok && isErr {
		subtype, _ := root["subtype"].(string)
		if subtype == "" {
			subtype = "unknown"
		}
		return nil, fmt.Errorf("claude returned an error (subtype: %s)", subtype)
	}
	if subtype, ok := root["subtype"].(string); ok && strings.HasPrefix(subtype, "error") {
		cost, _ := root["total_cost_usd"].(float64)
		turns, _ := root["num_turns"].(float64)
		return nil, fmt.Errorf(
			"Claude decomposition failed: %s (used %d turns, $%.2f). The agent may need more turns to explore the codebase and produce output.",
			subtype, int(turns), cost)
	}

	var tasksValue any
	if tasks, ok := root["tasks"]; ok {
		tasksValue = tasks
	} else if resultField, ok := root["result"]; ok {
		extracted, err := extractTasksFromResultField(resultField)
		if err != nil {
			return nil, err
		}
		tasksValue = extracted
	} else {
		return nil, fmt.Errorf("no 'tasks' or 'result' field in decomposition output")
	}

	data, err := json.Marshal(tasksValue)
	if err != nil {
		return nil, fmt.Errorf("reserialize tasks value: %w", err)
	}
	var raw []rawTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tasks array: %w", err)
	}

	drafts := make([]TaskDraft, 0, len(raw))
	for _, t := range raw {
		deps := make([]string, 0, len(t.DependsOn))
		for _, i := range t.DependsOn {
			deps = append(deps, fmt.Sprintf("__index_%d", i))
		}
		drafts = append(drafts, TaskDraft{
			Title:       t.Title,
			Description: t.Description,
			DependsOn:   deps,
		})
	}
	return drafts, nil
}

// extractTasksFromResultField handles the three shapes the result field
// takes: an object with "tasks", a JSON string, or prose containing a
// JSON object.
func extractTasksFromResultField(field any) (any, error) {
	if m, ok := field.(map[string]any); ok {
		if tasks, ok := m["tasks"]; ok {
			return tasks, nil
		}
	}

	s, ok := field.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected 'result' field type (not string or object)")
	}

	var inner any
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		if m, ok := inner.(map[string]any); ok {
			if tasks, ok := m["tasks"]; ok {
				return tasks, nil
			}
		}
		if arr, ok := inner.([]any); ok {
			return arr, nil
		}
	}

	if tasks := extractJSONWithTasks(s); tasks != nil {
		return tasks, nil
	}

	preview := s
	if len(preview) > 500 {
		preview = preview[:500] + "..."
	}
	return nil, fmt.Errorf("could not find tasks in result string. Content preview:\n%s", preview)
}

// extractJSONWithTasks scans prose for an embedded JSON object with a
// "tasks" key, matching braces so trailing text does not break parsing.
func extractJSONWithTasks(s string) any {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		candidate := s[i:]

		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			if tasks, ok := parsed["tasks"]; ok {
				return tasks
			}
		}

		depth := 0
		inString := false
		escaped := false
		for j := 0; j < len(candidate); j++ {
			ch := candidate[j]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case ch == '{' && !inString:
				depth++
			case ch == '}' && !inString:
				depth--
				if depth == 0 {
					var parsed map[string]any
					if err := json.Unmarshal([]byte(candidate[:j+1]), &parsed); err == nil {
						if tasks, ok := parsed["tasks"]; ok {
							return tasks
						}
					}
					j = len(candidate)
				}
			}
		}
	}
	return nil
}

// ResolveDependencies maps "__index_N" placeholders in draft
// dependencies to the IDs of the created tasks, in draft order.
func ResolveDependencies(deps []string, createdIDs []string) ([]string, error) {
	resolved := make([]string, 0, len(deps))
	for _, dep := range deps {
		if !strings.HasPrefix(dep, "__index_") {
			resolved = append(resolved, dep)
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(dep, "__index_%d", &idx); err != nil {
			return nil, fmt.Errorf("malformed dependency placeholder %q", dep)
		}
		if idx < 0 || idx >= len(createdIDs) {
			return nil, fmt.Errorf("dependency index %d out of range (have %d tasks)", idx, len(createdIDs))
		}
		resolved = append(resolved, createdIDs[idx])
	}
	return resolved, nil
}
