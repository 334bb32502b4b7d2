package agent

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

const maxDiffChars = 8000

const criticInstructions = `You review one step of a coding agent's work.
Judge whether the step is correct, complete and safe to build on.
Respond with a single JSON object and nothing else:
{"verdict": "approved" | "needs_revision" | "reject", "reason": "<one paragraph>"}`

const summaryInstructions = `Summarize the following sequence of coding-agent steps and reviews.
Keep decisions, open problems and the files touched. Omit pleasantries.
Write at most three short paragraphs of plain prose.`

func criticPrompt(actor *graph.Node) string {
	var b strings.Builder
	b.WriteString(criticInstructions)
	b.WriteString("\n\n## Step\n")
	b.WriteString(actor.Thought)
	if len(actor.Tags) > 0 {
		fmt.Fprintf(&b, "\n\nTags: %s", strings.Join(actor.Tags, ", "))
	}
	if len(actor.Artifacts) > 0 {
		b.WriteString("\n\n## Artifacts\n")
		for _, a := range actor.Artifacts {
			fmt.Fprintf(&b, "- %s (%s)\n", a.Name, a.Path)
		}
	}
	if actor.Diff != "" {
		b.WriteString("\n\n## Diff\n")
		b.WriteString(truncate(actor.Diff, maxDiffChars))
	}
	return b.String()
}

func summaryPrompt(nodes []graph.Node) string {
	var b strings.Builder
	b.WriteString(summaryInstructions)
	b.WriteString("\n\n")
	for i, n := range nodes {
		fmt.Fprintf(&b, "%d. [%s", i+1, n.Role)
		if n.Role == graph.RoleCritic {
			fmt.Fprintf(&b, " %s", n.Verdict)
		}
		fmt.Fprintf(&b, "] %s\n", strings.TrimSpace(n.Thought))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
