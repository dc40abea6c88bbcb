package registry

import (
	"context"
	"errors"

	"ovpn-issuer/internal/credstore"
)

// Action is a lifecycle operation recorded in the audit trail.
type Action string

const (
	ActionIssue   Action = "issue"
	ActionRevoke  Action = "revoke"
	ActionReissue Action = "reissue"
)

// Outcome is the result of a recorded action.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
	OutcomeNoop   Outcome = "noop"
)

// EventRecorder receives lifecycle events.
type EventRecorder interface {
	Record(ctx context.Context, identity string, action Action, outcome Outcome, detail string) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, Action, Outcome, string) error { return nil }

func (r *Registry) record(ctx context.Context, identity string, action Action, opErr error) {
	// Rejected identities are not recorded.
	if errors.Is(opErr, credstore.ErrInvalidIdentity) {
		return
	}
	outcome, detail := OutcomeOK, ""
	if opErr != nil {
		r.log.Warn().Err(opErr).Str("identity", identity).Str("action", string(action)).Msg("client operation failed")
		outcome, detail = OutcomeFailed, eventDetail(opErr)
	}
	r.emit(ctx, identity, action, outcome, detail)
}

// eventDetail summarises a failure for the audit trail. The trail is served over the
// API, so it names the failing stage and leaves filesystem paths to the log.
func eventDetail(err error) string {
	var issueErr *IssueError
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return ErrAlreadyExists.Error()
	case errors.Is(err, ErrProfileParams):
		return err.Error()
	case errors.As(err, &issueErr):
		return string(issueErr.Phase) + " phase failed"
	default:
		return "failed"
	}
}

func (r *Registry) recordNoop(ctx context.Context, identity string, action Action) {
	r.emit(ctx, identity, action, OutcomeNoop, "")
}

func (r *Registry) emit(ctx context.Context, identity string, action Action, outcome Outcome, detail string) {
	if err := r.events.Record(ctx, identity, action, outcome, detail); err != nil {
		r.log.Warn().Err(err).Str("identity", identity).Str("action", string(action)).Msg("failed to record audit event")
	}
}
