package digidoc

import (
	"fmt"

	"xdao.co/digidoc/x509cert"
)

// State is the lifecycle position of a SignatureRecord.
type State int

const (
	Created State = iota
	ChallengeIssued
	Solved
	Sealed
	Rejected
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case ChallengeIssued:
		return "challenge-issued"
	case Solved:
		return "solved"
	case Sealed:
		return "sealed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Certificate is a signing token's certificate: the token-side id and the
// DER certificate.
type Certificate struct {
	ID  string `json:"id"`
	DER []byte `json:"der"`
}

// Parse decodes the certificate.
func (c Certificate) Parse() (*x509cert.Certificate, error) {
	return x509cert.Parse(c.DER)
}

// SignatureRecord is one signature of a container. Records are created by
// Container.AddSignature (pending a challenge) or hydrated from the service
// (already sealed).
type SignatureRecord struct {
	handle Handle
	state  State

	id          string
	certificate *Certificate
	challenge   []byte
	solution    []byte

	// Status is the last per-signature status reported by the service.
	Status string
}

// newSignature returns a Created record for cert.
func newSignature(h Handle, cert Certificate) *SignatureRecord {
	c := cert
	c.DER = append([]byte(nil), cert.DER...)
	return &SignatureRecord{handle: h, state: Created, certificate: &c}
}

// restoreSignature returns a Sealed record known to the service. cert may be
// nil when the document does not say who signed.
func restoreSignature(h Handle, id string, cert *Certificate) *SignatureRecord {
	return &SignatureRecord{handle: h, state: Sealed, id: id, certificate: cert}
}

func (s *SignatureRecord) Handle() Handle { return s.handle }

func (s *SignatureRecord) State() State { return s.state }

// ID is the service-assigned id, empty while Created.
func (s *SignatureRecord) ID() string { return s.id }

// Certificate is nil for hydrated records without signer information.
func (s *SignatureRecord) Certificate() *Certificate { return s.certificate }

// Challenge returns the bytes the external signer must sign.
func (s *SignatureRecord) Challenge() []byte { return s.challenge }

func (s *SignatureRecord) Solution() []byte { return s.solution }

// IsSealed reports whether the signature is durably part of the document.
func (s *SignatureRecord) IsSealed() bool { return s.state == Sealed }

// SetSolution attaches the externally produced signature value. It is only
// valid once, after the challenge was issued.
func (s *SignatureRecord) SetSolution(solution []byte) error {
	if s.state != ChallengeIssued {
		return s.transitionError(Solved, "solution can only be set once, after the challenge was issued")
	}
	if len(solution) == 0 {
		return s.transitionError(Solved, "empty solution")
	}
	s.solution = append([]byte(nil), solution...)
	s.state = Solved
	return nil
}

// issue applies the service's id and challenge.
func (s *SignatureRecord) issue(id string, challenge []byte) error {
	if s.state != Created {
		return s.transitionError(ChallengeIssued, "")
	}
	if id == "" || len(challenge) == 0 {
		return s.transitionError(ChallengeIssued, "service must assign id and challenge together")
	}
	if s.solution != nil {
		return s.transitionError(ChallengeIssued, "record already carries a solution")
	}
	s.id = id
	s.challenge = append([]byte(nil), challenge...)
	s.state = ChallengeIssued
	return nil
}

func (s *SignatureRecord) seal() error {
	if s.state != Solved {
		return s.transitionError(Sealed, "")
	}
	s.state = Sealed
	return nil
}

func (s *SignatureRecord) reject() error {
	if s.state != Solved {
		return s.transitionError(Rejected, "")
	}
	s.state = Rejected
	return nil
}

func (s *SignatureRecord) transitionError(to State, reason string) error {
	return &TransitionError{SignatureID: s.id, From: s.state, To: to, Reason: reason}
}

// validate checks the invariants of a record rebuilt from a snapshot.
func (s *SignatureRecord) validate() error {
	bad := func(reason string) error { return s.transitionError(s.state, reason) }
	switch s.state {
	case Created:
		if s.id != "" || s.challenge != nil || s.solution != nil {
			return bad("created record carries service state")
		}
		if s.certificate == nil {
			return bad("created record without certificate")
		}
	case ChallengeIssued:
		if s.id == "" || len(s.challenge) == 0 || s.solution != nil {
			return bad("challenge-issued record needs id and challenge only")
		}
	case Solved:
		if s.id == "" || len(s.challenge) == 0 || len(s.solution) == 0 {
			return bad("solved record needs id, challenge and solution")
		}
	case Sealed:
		if s.id == "" {
			return bad("sealed record without id")
		}
	default:
		return bad("state cannot be restored")
	}
	return nil
}
