package xades_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"xdao.co/digidoc/internal/testpki"
	"xdao.co/digidoc/xades"
)

func TestDigest_KnownValues(t *testing.T) {
	cases := []struct {
		method string
		want   string
	}{
		{xades.SHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{xades.SHA3_256, "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
	}
	for _, tc := range cases {
		got, err := xades.Digest(tc.method, []byte("abc"))
		if err != nil {
			t.Fatalf("Digest(%s): %v", tc.method, err)
		}
		if hex.EncodeToString(got) != tc.want {
			t.Fatalf("Digest(%s) = %x, want %s", tc.method, got, tc.want)
		}
	}
	sha512, err := xades.Digest(xades.SHA512, []byte("abc"))
	if err != nil || len(sha512) != 64 {
		t.Fatalf("Digest(sha512) = %x, %v", sha512, err)
	}
	if _, err := xades.Digest("http://example.com/md5", nil); !errors.Is(err, xades.ErrUnsupportedDigest) {
		t.Fatalf("expected ErrUnsupportedDigest, got %v", err)
	}
}

func newSigned(t *testing.T, kt testpki.KeyType, files []xades.DataFile) (*xades.Signature, *testpki.Identity) {
	t.Helper()
	pki := testpki.New(t)
	signer := pki.Issue("Signer", kt)
	sig, err := xades.New(xades.Params{
		ID:          "S0",
		Certificate: signer.Cert,
		Files:       files,
		SigningTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	challenge, err := sig.Challenge(nil)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	value, err := signer.SignDigest(challenge)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	sig.SetValue(value)
	return sig, signer
}

func TestSignature_SignAndVerify(t *testing.T) {
	files := []xades.DataFile{
		{Name: "contract.txt", MimeType: "text/plain", Content: []byte("I agree.")},
		{Name: "annex 1.pdf", MimeType: "application/pdf", Content: []byte("%PDF-1.4")},
	}
	contents := map[string][]byte{"contract.txt": files[0].Content, "annex 1.pdf": files[1].Content}

	for _, kt := range []testpki.KeyType{testpki.RSA, testpki.ECDSA, testpki.Ed25519, testpki.Ed448, testpki.Dilithium3} {
		t.Run(kt.String(), func(t *testing.T) {
			sig, _ := newSigned(t, kt, files)
			if err := sig.Verify(nil, contents); err != nil {
				t.Fatalf("Verify: %v", err)
			}

			doc, err := sig.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			parsed, err := xades.Parse(doc)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if err := parsed.Verify(nil, contents); err != nil {
				t.Fatalf("Verify(parsed): %v", err)
			}
		})
	}
}

func TestSignature_DetectsTampering(t *testing.T) {
	files := []xades.DataFile{{Name: "a.txt", MimeType: "text/plain", Content: []byte("alpha")}}
	sig, _ := newSigned(t, testpki.ECDSA, files)

	if err := sig.Verify(nil, map[string][]byte{"a.txt": []byte("alpha!")}); !errors.Is(err, xades.ErrDigestMismatch) {
		t.Fatalf("changed file: got %v", err)
	}
	if err := sig.Verify(nil, map[string][]byte{}); !errors.Is(err, xades.ErrMissingFile) {
		t.Fatalf("missing file: got %v", err)
	}
	extra := map[string][]byte{"a.txt": []byte("alpha"), "b.txt": []byte("beta")}
	if err := sig.Verify(nil, extra); !errors.Is(err, xades.ErrUnreferencedFile) {
		t.Fatalf("extra file: got %v", err)
	}

	doc, err := sig.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	forged := bytes.Replace(doc, []byte("text/plain"), []byte("text/html"), 1)
	parsed, err := xades.Parse(forged)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Verify(nil, map[string][]byte{"a.txt": []byte("alpha")}); !errors.Is(err, xades.ErrDigestMismatch) {
		t.Fatalf("changed SignedProperties: got %v", err)
	}
}

func TestSignature_WrongValue(t *testing.T) {
	files := []xades.DataFile{{Name: "a.txt", MimeType: "text/plain", Content: []byte("alpha")}}
	sig, _ := newSigned(t, testpki.ECDSA, files)

	pki := testpki.New(t)
	other := pki.Issue("Other", testpki.ECDSA)
	challenge, err := sig.Challenge(nil)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	value, err := other.SignDigest(challenge)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if ok, err := sig.VerifyValue(nil, value); err != nil || ok {
		t.Fatalf("VerifyValue(other) = %v, %v", ok, err)
	}
	sig.SetValue(value)
	if err := sig.Verify(nil, map[string][]byte{"a.txt": []byte("alpha")}); !errors.Is(err, xades.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestChallenge_UsesCanonicalizer(t *testing.T) {
	files := []xades.DataFile{{Name: "a.txt", MimeType: "text/plain", Content: []byte("alpha")}}
	sig, _ := newSigned(t, testpki.ECDSA, files)

	var seen []byte
	canon := xades.CanonicalizerFunc(func(b []byte) ([]byte, error) {
		seen = append([]byte(nil), b...)
		return []byte("canonical"), nil
	})
	got, err := sig.Challenge(canon)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	want := sha256.Sum256([]byte("canonical"))
	if !bytes.Equal(got, want[:]) {
		t.Fatalf("challenge = %x, want %x", got, want)
	}
	if !bytes.Contains(seen, []byte("SignedInfo")) {
		t.Fatalf("canonicalizer saw %q", seen)
	}
}

func TestOCSPValues(t *testing.T) {
	sig, _ := newSigned(t, testpki.ECDSA, nil)
	sig.AddOCSP([]byte{0x30, 0x03, 0x0a, 0x01, 0x00})
	doc, err := sig.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := xades.Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := parsed.OCSPResponses()
	if err != nil || len(got) != 1 || !bytes.Equal(got[0], []byte{0x30, 0x03, 0x0a, 0x01, 0x00}) {
		t.Fatalf("OCSPResponses = %x, %v", got, err)
	}
}
