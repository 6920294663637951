package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks a call whose response never loaded: network failure,
	// non-200 status, or a body that did not invoke the expected callback.
	ErrTransport = errors.New("transport failed")
	// ErrTimedOut marks a call that outlived the client timeout.
	ErrTimedOut = errors.New("call timed out")
)

// ServerError is a payload-level failure: the endpoint answered with
// {success:false, error:<message>}.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server reported failure"
	}
	return fmt.Sprintf("server reported failure: %s", e.Message)
}

// IsTransient reports whether err is a transport failure or a timeout. Both
// get the same user-facing treatment.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimedOut)
}

// IsServerError reports whether err carries a ServerError.
func IsServerError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
