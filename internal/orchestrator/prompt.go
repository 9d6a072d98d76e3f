package orchestrator

import (
	"fmt"
	"strings"

	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// RenderPrompt deterministically serialises incidents into the single
// user-turn message sent to the agent: "Solve these migration issues …
// 1. … 2. …", with the single-incident case omitting numbering. A pure
// function of incidents.
func RenderPrompt(incidents []jsonrpc.Incident) string {
	if len(incidents) == 1 {
		return fmt.Sprintf("Solve this migration issue: %s", incidents[0].Message)
	}

	var b strings.Builder
	b.WriteString("Solve these migration issues:\n")
	for i, inc := range incidents {
		fmt.Fprintf(&b, "%d. %s\n", i+1, inc.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
