package token

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"xdao.co/digidoc/x509cert"
)

// Token is an unlocked software token.
type Token struct {
	Name string
	Cert *x509cert.Certificate
	key  ed25519.PrivateKey
}

// SignChallenge signs a challenge digest. Ed25519 signs the digest bytes
// themselves, which is what x509cert.VerifyDigest expects.
func (t *Token) SignChallenge(challenge []byte) ([]byte, error) {
	if len(challenge) == 0 {
		return nil, errors.New("token: empty challenge")
	}
	return ed25519.Sign(t.key, challenge), nil
}

// DeriveRoleSeed deterministically derives a role-specific seed from a root
// seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("token: root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckName(role); err != nil {
		return nil, fmt.Errorf("token: role: %w", err)
	}
	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("digidoc-token-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}
