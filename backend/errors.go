package backend

import (
	"errors"
	"fmt"
)

// Kinds of ProtocolError, matched with errors.Is.
var (
	ErrProtocol           = errors.New("backend: service error")
	ErrAccessDenied       = errors.New("backend: access denied")
	ErrSessionLocked      = errors.New("backend: session locked")
	ErrCertificateInvalid = errors.New("backend: certificate invalid")
	ErrRequestTooLarge    = errors.New("backend: request too large")
	ErrRateLimited        = errors.New("backend: rate limited")
)

// Service status codes.
const (
	CodeGeneral            = 100
	CodeBadInput           = 101
	CodeMissingInput       = 102
	CodeAccessDenied       = 103
	CodeService            = 200
	CodeMissingCertificate = 201
	CodeUnverifiableCert   = 202
	CodeSessionLocked      = 203
	CodeCertificateRevoked = 302
	CodeCertificateOnHold  = 304
	CodeCertificateExpired = 305
	CodeTooLarge           = 413
	CodeRateLimited        = 503
)

var codeText = map[int]string{
	CodeGeneral:            "general error",
	CodeBadInput:           "incorrect input parameters",
	CodeMissingInput:       "required input parameters are missing",
	CodeAccessDenied:       "access to the service is denied",
	CodeService:            "general service error",
	CodeMissingCertificate: "missing user certificate",
	CodeUnverifiableCert:   "unable to verify certificate validity",
	CodeSessionLocked:      "session is locked by another operation",
	CodeCertificateRevoked: "certificate is revoked",
	CodeCertificateOnHold:  "certificate is suspended",
	CodeCertificateExpired: "certificate has expired",
	CodeTooLarge:           "request exceeds the permitted size",
	CodeRateLimited:        "too many simultaneous requests",
}

// ProtocolError is a non-OK status reported by the service for an RPC.
type ProtocolError struct {
	Code    int
	Message string
	kind    error
}

// NewProtocolError maps code to its kind. An empty message uses the
// standard text for the code.
func NewProtocolError(code int, message string) *ProtocolError {
	if message == "" {
		message = codeText[code]
	}
	return &ProtocolError{Code: code, Message: message, kind: KindOf(code)}
}

// Errorf is NewProtocolError with a formatted message.
func Errorf(code int, format string, args ...any) *ProtocolError {
	return NewProtocolError(code, fmt.Sprintf(format, args...))
}

// KindOf returns the error kind for a status code.
func KindOf(code int) error {
	switch code {
	case CodeAccessDenied:
		return ErrAccessDenied
	case CodeSessionLocked:
		return ErrSessionLocked
	case CodeMissingCertificate, CodeUnverifiableCert, CodeCertificateRevoked, CodeCertificateOnHold, CodeCertificateExpired:
		return ErrCertificateInvalid
	case CodeTooLarge:
		return ErrRequestTooLarge
	case CodeRateLimited:
		return ErrRateLimited
	default:
		return ErrProtocol
	}
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Code)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	if e.kind == nil {
		return KindOf(e.Code)
	}
	return e.kind
}

// CodeOf extracts the status code of a ProtocolError in err's chain.
func CodeOf(err error) (int, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
