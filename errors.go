package rtassist

import "fmt"

// FailureKind classifies session failures. Transport-fatal kinds move the
// session to StateError; the remaining kinds are handled locally and never
// interrupt a healthy session.
type FailureKind string

const (
	FailureCredentialFetch  FailureKind = "credential_fetch_failed"
	FailureMediaAcquisition FailureKind = "media_acquisition_denied"
	FailureSignaling        FailureKind = "signaling_failed"
	FailureChannelClosed    FailureKind = "channel_closed_unexpectedly"
	FailureChannelNotOpen   FailureKind = "channel_not_open"
	FailureSessionExpired   FailureKind = "session_expired"
)

// SessionError carries the failure classification alongside the underlying
// cause.
type SessionError struct {
	Kind FailureKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure tears down the session.
func (e *SessionError) Fatal() bool {
	switch e.Kind {
	case FailureCredentialFetch, FailureMediaAcquisition, FailureSignaling, FailureChannelClosed:
		return true
	}
	return false
}

func sessionErr(kind FailureKind, err error) *SessionError {
	return &SessionError{Kind: kind, Err: err}
}

func sessionErrf(kind FailureKind, format string, args ...any) *SessionError {
	return &SessionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
