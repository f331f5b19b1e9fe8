package dispatch

import "fmt"

// ErrorKind classifies dispatch failures.
type ErrorKind string

const (
	// KindTransport covers network errors and timeouts. No response reached us.
	KindTransport ErrorKind = "transport"
	// KindUnauthorized means the provider rejected the credential (401/403).
	// The caller may refresh once and retry.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindProviderRejected is any other non-2xx answer. Not retried.
	KindProviderRejected ErrorKind = "provider_rejected"
	// KindBadRequest means the request could not be assembled (unresolved
	// path slot, bad endpoint template). Nothing was sent.
	KindBadRequest ErrorKind = "bad_request"
)

// Error is the structured dispatch failure surfaced to callers. For
// provider-side rejections it carries the status code and raw error body.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("dispatch %s (%s): status %d", e.Provider, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("dispatch %s (%s): %v", e.Provider, e.Kind, e.Err)
	default:
		return fmt.Sprintf("dispatch %s (%s)", e.Provider, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }
