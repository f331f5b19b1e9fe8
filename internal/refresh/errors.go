package refresh

import "fmt"

// ErrorKind classifies refresh failures.
type ErrorKind string

const (
	// KindNoRefreshEndpoint means neither the registry template nor a
	// fallback resolver produced a token URL. Configuration gap, non-fatal.
	KindNoRefreshEndpoint ErrorKind = "no_refresh_endpoint"
	// KindTransportFailure covers network errors and timeouts during the
	// exchange. The stored credential is left untouched.
	KindTransportFailure ErrorKind = "refresh_transport_failure"
	// KindRejected means the provider answered the exchange with a non-2xx.
	// The stored credential keeps its old tokens; permanent rejections also
	// deactivate it.
	KindRejected ErrorKind = "refresh_rejected"
)

// Error describes a failed refresh attempt. Callers always receive the prior
// credential alongside it and decide whether to dispatch anyway.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh %s (%s): %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("refresh %s (%s)", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }
