// Package chat runs plan-mode conversations about a goal space and
// streams the reply to SSE subscribers.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/state"
	"github.com/conductor-hq/conductor/internal/stream"
	"github.com/conductor-hq/conductor/pkg/models"
)

// historyWindow is how many prior messages are replayed as context.
const historyWindow = 20

// Run saves the user message, generates an assistant reply with the
// agent in plan mode, broadcasts the reply as ChatChunk events, and
// persists it. The final chunk has Done set and an empty Chunk.
func Run(ctx context.Context, db *state.DB, b *bus.Bus, goalSpaceID, message, operationID string) error {
	goal, err := db.GetGoalSpace(goalSpaceID)
	if err != nil {
		return fmt.Errorf("load goal space: %w", err)
	}
	if goal == nil {
		return fmt.Errorf("goal space %s not found", goalSpaceID)
	}

	if err := db.AddGoalMessage(&models.GoalMessage{
		ID:          uuid.New().String(),
		GoalSpaceID: goalSpaceID,
		Role:        "user",
		Content:     message,
	}); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}

	history, err := db.ListGoalMessages(goalSpaceID, historyWindow)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	systemPrompt := fmt.Sprintf(
		"You are an AI assistant helping with the goal: %s\n"+
			"Description: %s\n"+
			"Repository: %s\n\n"+
			"You are having a conversation about this goal. Help the user plan, "+
			"understand, and make decisions about this goal. Be concise and helpful.",
		goal.Name, goal.Description, goal.RepoPath)

	cmd := exec.CommandContext(ctx, "claude",
		"-p", buildPrompt(history, message),
		"--output-format", "stream-json",
		"--verbose",
		"--max-turns", "3",
		"--append-system-prompt", systemPrompt,
		"--permission-mode", "plan",
		"--allowedTools", "Read",
		"--allowedTools", "Grep",
		"--allowedTools", "Glob",
	)
	cmd.Dir = goal.RepoPath

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn claude for chat: %w", err)
	}

	stderrCh := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(stderr)
		stderrCh <- string(data)
	}()

	emit := func(chunk string, done bool) {
		b.Publish(bus.ChatChunk{
			OperationID: operationID,
			GoalSpaceID: goalSpaceID,
			Chunk:       chunk,
			Done:        done,
		})
	}

	var response strings.Builder

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		parsed := stream.ParseLine(scanner.Text())
		if parsed == nil {
			continue
		}
		switch parsed.Kind {
		case stream.KindTextDelta:
			response.WriteString(parsed.Text)
			emit(parsed.Text, false)
		case stream.KindTextMessage:
			// The CLI emits whole assistant messages rather than
			// incremental deltas; forward them as one chunk.
			if parsed.Text != "" {
				response.WriteString(parsed.Text)
				emit(parsed.Text, false)
			}
		case stream.KindResult:
			if response.Len() == 0 && parsed.Text != "" {
				response.WriteString(parsed.Text)
				emit(parsed.Text, false)
			}
		}
	}

	waitErr := cmd.Wait()
	stderrOut := <-stderrCh
	if waitErr != nil {
		return fmt.Errorf("claude chat failed (%v): %s", waitErr, strings.TrimSpace(stderrOut))
	}

	if response.Len() > 0 {
		if err := db.AddGoalMessage(&models.GoalMessage{
			ID:          uuid.New().String(),
			GoalSpaceID: goalSpaceID,
			Role:        "assistant",
			Content:     response.String(),
		}); err != nil {
			return fmt.Errorf("save assistant message: %w", err)
		}
	}

	emit("", true)
	return nil
}

// buildPrompt prepends recent conversation history to the user's latest
// message. The history already contains the just-saved user message, so
// it is excluded from the replayed transcript.
func buildPrompt(history []models.GoalMessage, message string) string {
	var parts []string
	for _, m := range history {
		if m.Role == "user" || m.Role == "assistant" {
			parts = append(parts, fmt.Sprintf("%s: %s", m.Role, m.Content))
		}
	}
	if len(parts) <= 1 {
		return message
	}
	return fmt.Sprintf("Previous conversation:\n%s\n\nUser's latest message: %s",
		strings.Join(parts[:len(parts)-1], "\n\n"), message)
}
