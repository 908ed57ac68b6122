package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"assigned is valid", TaskStatusAssigned, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"running is valid", TaskStatusRunning, true},
		{"done is valid", TaskStatusDone, true},
		{"failed is valid", TaskStatusFailed, true},
		{"stalled is valid", TaskStatusStalled, true},
		{"killed is valid", TaskStatusKilled, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
		{"typo status is invalid", TaskStatus("pendingg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"pending to assigned", TaskStatusPending, TaskStatusAssigned, true},
		{"pending to blocked", TaskStatusPending, TaskStatusBlocked, true},
		{"pending to running", TaskStatusPending, TaskStatusRunning, true},
		{"assigned to running", TaskStatusAssigned, TaskStatusRunning, true},
		{"assigned back to pending", TaskStatusAssigned, TaskStatusPending, true},
		{"running to done", TaskStatusRunning, TaskStatusDone, true},
		{"running to failed", TaskStatusRunning, TaskStatusFailed, true},
		{"running to stalled", TaskStatusRunning, TaskStatusStalled, true},
		{"stalled back to running", TaskStatusStalled, TaskStatusRunning, true},
		{"stalled to failed", TaskStatusStalled, TaskStatusFailed, true},
		{"stalled to killed", TaskStatusStalled, TaskStatusKilled, true},
		{"failed retried to pending", TaskStatusFailed, TaskStatusPending, true},
		{"blocked unblocked to pending", TaskStatusBlocked, TaskStatusPending, true},
		{"identity pending", TaskStatusPending, TaskStatusPending, true},
		{"identity done", TaskStatusDone, TaskStatusDone, true},
		{"pending straight to done", TaskStatusPending, TaskStatusDone, false},
		{"running back to pending", TaskStatusRunning, TaskStatusPending, false},
		{"done to running", TaskStatusDone, TaskStatusRunning, false},
		{"done to pending", TaskStatusDone, TaskStatusPending, false},
		{"killed to running", TaskStatusKilled, TaskStatusRunning, false},
		{"failed to done", TaskStatusFailed, TaskStatusDone, false},
		{"blocked to running", TaskStatusBlocked, TaskStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidateTransition_ErrorMessage(t *testing.T) {
	err := ValidateTransition(TaskStatusDone, TaskStatusRunning)
	if err == nil {
		t.Fatal("expected error for done -> running")
	}
	want := "invalid task status transition: done -> running"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	if err := ValidateTransition(TaskStatusPending, TaskStatusRunning); err != nil {
		t.Errorf("pending -> running should be allowed, got %v", err)
	}
}

func TestHasCycle(t *testing.T) {
	tests := []struct {
		name   string
		taskID string
		deps   []string
		edges  map[string][]string
		want   bool
	}{
		{
			name:   "no dependencies",
			taskID: "a",
			deps:   nil,
			edges:  map[string][]string{},
			want:   false,
		},
		{
			name:   "direct self dependency",
			taskID: "a",
			deps:   []string{"a"},
			edges:  map[string][]string{},
			want:   true,
		},
		{
			name:   "two node cycle",
			taskID: "a",
			deps:   []string{"b"},
			edges:  map[string][]string{"b": {"a"}},
			want:   true,
		},
		{
			name:   "three node cycle",
			taskID: "a",
			deps:   []string{"b"},
			edges:  map[string][]string{"b": {"c"}, "c": {"a"}},
			want:   true,
		},
		{
			name:   "linear chain is fine",
			taskID: "a",
			deps:   []string{"b"},
			edges:  map[string][]string{"b": {"c"}, "c": {}},
			want:   false,
		},
		{
			name:   "diamond is fine",
			taskID: "d",
			deps:   []string{"b", "c"},
			edges:  map[string][]string{"b": {"a"}, "c": {"a"}, "a": {}},
			want:   false,
		},
		{
			name:   "cycle elsewhere does not implicate task",
			taskID: "x",
			deps:   []string{"b"},
			edges:  map[string][]string{"b": {"c"}, "c": {"b"}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCycle(tt.taskID, tt.deps, tt.edges); got != tt.want {
				t.Errorf("HasCycle(%q, %v) = %v, want %v", tt.taskID, tt.deps, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	if !TaskStatusDone.Terminal() {
		t.Error("done should be terminal")
	}
	if !TaskStatusKilled.Terminal() {
		t.Error("killed should be terminal")
	}
	if TaskStatusFailed.Terminal() {
		t.Error("failed is retryable, not terminal")
	}
	if TaskStatusRunning.Terminal() {
		t.Error("running should not be terminal")
	}
}
