package httpapi

import (
	"fmt"
)

// RequestError is returned for any REST call that did not succeed. Callers
// decide visibility: hydration and send failures surface to the user,
// read-acknowledgement failures are logged and retried by the sweep.
type RequestError struct {
	// Op names the failed operation (e.g. "send message").
	Op string

	// Status is the HTTP status code, 0 when the request never
	// completed.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
