package agentrt

import "encoding/json"

const (
	// DefaultMaxTurns is substituted when a client configuration omits
	// (or sends 0 for) the turn cap.
	DefaultMaxTurns = 1000
	// MinMaxTurns and MaxMaxTurns bound the clamp range.
	MinMaxTurns = 1
	MaxMaxTurns = 10_000
)

// RunConfig is the per-turn configuration the Agent Factory derives and
// hands to Agent.Reply.
type RunConfig struct {
	SessionID   string
	Scheduler   string // copied verbatim from the client config, may be empty
	MaxTurns    int
	RetryPolicy json.RawMessage // opaque, passed through untouched
}

// ClampMaxTurns applies the turn-cap clamp: 0 becomes the default,
// values below 1 or above 10000 are clamped into [1, 10000]. The 0 case
// counts as clamped, so callers that warn-log on wasClamped log the
// substitution too.
func ClampMaxTurns(requested int) (clamped int, wasClamped bool) {
	switch {
	case requested == 0:
		return DefaultMaxTurns, true
	case requested < MinMaxTurns:
		return MinMaxTurns, true
	case requested > MaxMaxTurns:
		return MaxMaxTurns, true
	default:
		return requested, false
	}
}
