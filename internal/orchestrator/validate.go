package orchestrator

import (
	"github.com/google/uuid"

	"github.com/kandev/kaiak/internal/errs"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

const maxIncidents = 1000

// validateGenerateFix runs the pre-lock validation: session_id parses
// as a UUID, incidents has length 1..=1000 and every element has a
// non-empty message, and the agent config's workspace is plausible
// shape (full existence/directory validation happens inside the session
// manager, which is the single owner of that check).
func validateGenerateFix(req jsonrpc.GenerateFixParams) error {
	if _, err := uuid.Parse(req.SessionID); err != nil {
		return errs.Newf(errs.KindConfiguration, "session_id %q is not a valid UUID", req.SessionID)
	}

	if len(req.Incidents) == 0 || len(req.Incidents) > maxIncidents {
		return errs.Newf(errs.KindConfiguration, "incidents must contain between 1 and %d entries, got %d", maxIncidents, len(req.Incidents))
	}

	for i, inc := range req.Incidents {
		if inc.Message == "" {
			return errs.Newf(errs.KindConfiguration, "incidents[%d].message must not be empty", i)
		}
	}

	if req.AgentConfig.Provider == "" || req.AgentConfig.Model == "" {
		return errs.New(errs.KindConfiguration, "agent_config.provider and agent_config.model must be non-empty")
	}

	if req.AgentConfig.Workspace == "" {
		return errs.New(errs.KindWorkspaceInvalid, "agent_config.workspace must not be empty")
	}

	return nil
}

// validateDeleteSession checks the delete_session request's shape before
// any lock or store state is consulted: a malformed session_id is a
// validation error, never a silent not_found.
func validateDeleteSession(req jsonrpc.DeleteSessionParams) error {
	if _, err := uuid.Parse(req.SessionID); err != nil {
		return errs.Newf(errs.KindConfiguration, "session_id %q is not a valid UUID", req.SessionID)
	}

	if opts := req.CleanupOptions; opts != nil && opts.GracePeriodS != 0 {
		if opts.GracePeriodS < 1 || opts.GracePeriodS > 3600 {
			return errs.Newf(errs.KindConfiguration, "cleanup_options.grace_period_s must be between 1 and 3600, got %d", opts.GracePeriodS)
		}
	}

	return nil
}
