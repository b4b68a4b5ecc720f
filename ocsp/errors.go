package ocsp

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedResponseType = errors.New("ocsp: unsupported response type")
	ErrCertIDNotFound          = errors.New("ocsp: response does not cover the requested certificate")

	// Returned by Responder, which turns the boolean checks of Response into policy.
	ErrSignatureMismatch = errors.New("ocsp: response is not signed by the responder")
	ErrNonceMismatch     = errors.New("ocsp: response nonce does not match request")
	ErrStaleResponse     = errors.New("ocsp: response is outside its validity window")
)

// StatusError reports a response whose responseStatus is not successful.
type StatusError struct {
	Code ResponseStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ocsp: responder returned %s (%d)", e.Code, int(e.Code))
}

// IsStatusError reports whether err carries a non-successful response status.
func IsStatusError(err error) bool {
	var e *StatusError
	return errors.As(err, &e)
}
