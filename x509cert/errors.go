package x509cert

import "errors"

var (
	ErrParse                = errors.New("x509cert: malformed certificate")
	ErrUnsupportedAlgorithm = errors.New("x509cert: unsupported signature algorithm")
	ErrKeyFormat            = errors.New("x509cert: unusable public key")
)

// IsUnsupportedAlgorithm reports whether err (or a wrapped error) is ErrUnsupportedAlgorithm.
func IsUnsupportedAlgorithm(err error) bool { return errors.Is(err, ErrUnsupportedAlgorithm) }
