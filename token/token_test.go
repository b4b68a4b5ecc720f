package token

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"xdao.co/digidoc/x509cert"
)

func fixedSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	return seed
}

func TestInitLoadSign(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	tok, err := s.Init("alice", fixedSeed(), false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if tok.Cert.SubjectCommonName() != "alice" {
		t.Fatalf("CN = %q", tok.Cert.SubjectCommonName())
	}
	if ok, err := tok.Cert.HasSigned(tok.Cert); err != nil || !ok {
		t.Fatalf("certificate is not self-signed: %v %v", ok, err)
	}

	loaded, err := s.Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Cert.Equal(tok.Cert) {
		t.Fatalf("loaded certificate differs")
	}

	challenge := sha256.Sum256([]byte("signed info"))
	sig, err := loaded.SignChallenge(challenge[:])
	if err != nil {
		t.Fatalf("SignChallenge: %v", err)
	}
	if ok, err := tok.Cert.VerifyDigest(challenge[:], sig, x509cert.OIDEd25519.String()); err != nil || !ok {
		t.Fatalf("VerifyDigest = %v, %v", ok, err)
	}
	if _, err := loaded.SignChallenge(nil); err == nil {
		t.Fatalf("expected error for empty challenge")
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	if _, err := s.Init("alice", nil, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := s.Init("alice", nil, false); !errors.Is(err, ErrExists) {
		t.Fatalf("second Init err = %v, want ErrExists", err)
	}
	if _, err := s.Init("alice", fixedSeed(), true); err != nil {
		t.Fatalf("Init with overwrite: %v", err)
	}
}

func TestDerive_IsDeterministic(t *testing.T) {
	var keys [][]byte
	for i := 0; i < 2; i++ {
		s := &Store{Dir: t.TempDir()}
		if _, err := s.Init("root", fixedSeed(), false); err != nil {
			t.Fatalf("Init: %v", err)
		}
		tok, err := s.Derive("root", "signing", false)
		if err != nil {
			t.Fatalf("Derive: %v", err)
		}
		if tok.Name != "root-signing" {
			t.Fatalf("Name = %q", tok.Name)
		}
		keys = append(keys, tok.Cert.SubjectPublicKey())
	}
	if !bytes.Equal(keys[0], keys[1]) {
		t.Fatalf("derived keys differ")
	}

	root, err := DeriveRoleSeed(fixedSeed(), "a")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	other, err := DeriveRoleSeed(fixedSeed(), "b")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if bytes.Equal(root, other) {
		t.Fatalf("roles derive the same seed")
	}
}

func TestList(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	if names, err := s.List(); err != nil || len(names) != 0 {
		t.Fatalf("List on empty store = %v, %v", names, err)
	}
	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := s.Init(name, nil, false); err != nil {
			t.Fatalf("Init(%s): %v", name, err)
		}
	}
	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"alice", "bob", "carol"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	missing := &Store{Dir: t.TempDir() + "/nope"}
	if names, err := missing.List(); err != nil || names != nil {
		t.Fatalf("List on missing dir = %v, %v", names, err)
	}
}

func TestValidation(t *testing.T) {
	for _, name := range []string{"", "a b", "../x", "é"} {
		if err := CheckName(name); err == nil {
			t.Fatalf("CheckName(%q) accepted", name)
		}
	}
	for _, seed := range []string{"zz", "0011", ""} {
		if _, err := ParseSeedHex(seed); err == nil {
			t.Fatalf("ParseSeedHex(%q) accepted", seed)
		}
	}
	if got, err := ParseSeedHex("0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f\n"); err != nil || !bytes.Equal(got, fixedSeed()) {
		t.Fatalf("ParseSeedHex = %x, %v", got, err)
	}
	s := &Store{Dir: t.TempDir()}
	if _, err := s.Load("ghost"); err == nil {
		t.Fatalf("Load of missing token succeeded")
	}
}
