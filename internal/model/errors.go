package model

// Error is the error taxonomy shared by the registry, relay and control plane.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNotFound            Error = "session not found"
	ErrDuplicateCredential Error = "credential already bound to a session"
	ErrQuotaExceeded       Error = "trial message quota exhausted"
	ErrLinkDown            Error = "relay link is down"
	ErrUpstream            Error = "bot platform reported a failure"
	ErrInvalidTransition   Error = "invalid session state transition"
	ErrNotAuthorized       Error = "session is not authorized"
	ErrNotTrial            Error = "session is not in trial mode"
)
