package git

import (
	"strings"
	"testing"
)

func TestBranchName(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
		title   string
		want    string
	}{
		{
			"simple title",
			"abcdef12-3456-7890-abcd-ef1234567890", "Add login page",
			"conductor/abcdef12/add-login-page",
		},
		{
			"special characters become hyphens",
			"abcdef12-xxxx", "Fix bug: handle NULL pointers!",
			"conductor/abcdef12/fix-bug--handle-null-pointers",
		},
		{
			"short agent id kept whole",
			"abc", "task",
			"conductor/abc/task",
		},
		{
			"all special characters trim to empty slug",
			"abcdef12-xxxx", "!!!@@@###",
			"conductor/abcdef12/",
		},
		{
			"existing hyphens preserved",
			"abcdef12-xxxx", "already-hyphenated-name",
			"conductor/abcdef12/already-hyphenated-name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BranchName(tt.agentID, tt.title); got != tt.want {
				t.Errorf("BranchName(%q, %q) = %q, want %q", tt.agentID, tt.title, got, tt.want)
			}
		})
	}
}

func TestBranchName_LongTitleTruncated(t *testing.T) {
	got := BranchName("abcdef12-xxxx", strings.Repeat("a", 100))
	if len(got) > len("conductor/abcdef12/")+40 {
		t.Errorf("branch name too long: %q (%d chars)", got, len(got))
	}
}

func TestBranchName_UppercaseLowered(t *testing.T) {
	got := BranchName("abcdef12-xxxx", "UPPER Case Title")
	if !strings.Contains(got, "upper-case-title") {
		t.Errorf("BranchName = %q, want lower-cased slug", got)
	}
}

func TestBranchName_Pure(t *testing.T) {
	a := BranchName("abcdef12", "Add feature x")
	b := BranchName("abcdef12", "Add feature x")
	if a != b {
		t.Errorf("BranchName is not deterministic: %q vs %q", a, b)
	}
}
