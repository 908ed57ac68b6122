package git

import (
	"fmt"
	"strings"
	"unicode"
)

// BranchNamespace is the reserved prefix for branches created by
// Conductor. Cleanup only ever touches branches under this prefix.
const BranchNamespace = "conductor/"

// BranchName derives the branch name for an agent run working on a
// task. The result is conductor/<first 8 chars of the run id>/<slug>,
// where the slug is the title lower-cased with every character that is
// not alphanumeric or a hyphen replaced by a hyphen, leading and
// trailing hyphens trimmed, and truncated to 40 characters.
func BranchName(agentRunID, taskTitle string) string {
	var b strings.Builder
	for _, c := range taskTitle {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '-' {
			b.WriteRune(c)
		} else {
			b.WriteRune('-')
		}
	}

	slug := strings.ToLower(b.String())
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}

	id := agentRunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s%s/%s", BranchNamespace, id, slug)
}
