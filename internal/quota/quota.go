package quota

import (
	"context"

	"botrelay/internal/model"
	"botrelay/internal/registry"
)

type Result struct {
	Allowed  bool
	NewCount int
}

// Enforcer gates trial sends against the per-session message quota.
type Enforcer struct {
	registry *registry.Registry
}

func NewEnforcer(r *registry.Registry) *Enforcer {
	return &Enforcer{registry: r}
}

// TryConsume checks and increments the session's message count as one step.
// Authorized sessions are always allowed and their count is left alone.
// An exhausted quota is reported through Result, not as an error.
func (e *Enforcer) TryConsume(ctx context.Context, id string) (Result, error) {
	var res Result
	_, _, err := e.registry.Update(ctx, id, func(sess *model.Session) (bool, error) {
		if sess.Mode == model.ModeAuthorized {
			res = Result{Allowed: true, NewCount: sess.MessageCount}
			return false, nil
		}
		if sess.MessageCount >= sess.QuotaLimit {
			res = Result{Allowed: false, NewCount: sess.MessageCount}
			return false, nil
		}
		sess.MessageCount++
		res = Result{Allowed: true, NewCount: sess.MessageCount}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
