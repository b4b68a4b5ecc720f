package asn1ber

import "errors"

// ErrorKind is a stable category for codec failures.
//
// Callers should branch on ErrorKind/RuleID rather than matching error strings.
type ErrorKind string

const (
	Malformed      ErrorKind = "Malformed"
	Truncated      ErrorKind = "Truncated"
	Indefinite     ErrorKind = "Indefinite"
	SchemaMismatch ErrorKind = "SchemaMismatch"
	MissingField   ErrorKind = "MissingField"
	UnknownOID     ErrorKind = "UnknownOID"
	EncodeFailure  ErrorKind = "Encode"
)

// ErrUnknownOID is wrapped by every UnknownOID error so callers can use errors.Is.
var ErrUnknownOID = errors.New("asn1ber: unknown object identifier")

// Error is the codec's structured error type.
//
// RuleID is a stable identifier (e.g. ASN1-LEN-002) naming the violated rule.
// Path locates the failure inside a schema projection, e.g.
// "BasicOCSPResponse.tbsResponseData.responses[0]".
type Error struct {
	Kind    ErrorKind
	RuleID  string
	Path    string
	Offset  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "asn1ber: " + e.Message
	if e.Path != "" {
		msg = "asn1ber: " + e.Path + ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind ErrorKind, ruleID, path, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Path: path, Message: msg}
}

func offsetError(kind ErrorKind, ruleID string, offset int, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Offset: offset, Message: msg}
}

func wrapError(kind ErrorKind, ruleID, path, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, path, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Path: path, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
