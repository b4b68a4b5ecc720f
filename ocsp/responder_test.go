package ocsp_test

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"xdao.co/digidoc/internal/testpki"
	"xdao.co/digidoc/ocsp"
	"xdao.co/digidoc/storage"
)

func TestRequest_RoundTrip(t *testing.T) {
	pki := testpki.New(t)
	leaf := pki.Issue("Alice", testpki.ECDSA)
	nonce := testpki.Nonce()

	der, id, err := ocsp.CreateRequest(pki.CA.Cert, leaf.Cert, nonce)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	req, err := ocsp.ParseRequest(der)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if len(req.CertIDs) != 1 || !req.CertIDs[0].Equal(id) {
		t.Fatalf("CertIDs = %+v, want %+v", req.CertIDs, id)
	}
	if !bytes.Equal(req.Nonce, nonce) {
		t.Fatalf("Nonce = %x, want %x", req.Nonce, nonce)
	}
	if _, err := ocsp.NewRequest(nil, nil); err == nil {
		t.Fatalf("expected error for empty request")
	}
}

func TestNewCertID_UnsupportedHash(t *testing.T) {
	pki := testpki.New(t)
	leaf := pki.Issue("Alice", testpki.ECDSA)
	if _, err := ocsp.NewCertID(pki.CA.Cert, leaf.Cert, crypto.MD5); err == nil {
		t.Fatalf("expected error for MD5")
	}
}

type stubTransport struct {
	reply func(req []byte) []byte
	calls int
}

func (s *stubTransport) RoundTrip(_ context.Context, _ string, req []byte) ([]byte, error) {
	s.calls++
	return s.reply(req), nil
}

func TestResponder_Check(t *testing.T) {
	pki := testpki.New(t)
	leaf := pki.Issue("Alice", testpki.ECDSA)
	srv := httptest.NewServer(pki.Handler(testpki.ResponseOptions{}))
	defer srv.Close()

	archive := storage.NewArchive(storage.NewMemory())
	r := &ocsp.Responder{URL: srv.URL, Cert: pki.Responder.Cert, Archive: archive}
	res, err := r.Check(context.Background(), pki.CA.Cert, leaf.Cert)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Single.Status != ocsp.Good {
		t.Fatalf("status = %v, want good", res.Single.Status)
	}
	if !res.Response.IsNonceEqualTo(res.Nonce) {
		t.Fatalf("nonce was not echoed")
	}
	if res.Archived == nil {
		t.Fatalf("response was not archived")
	}
	got, err := archive.Get(*res.Archived)
	if err != nil {
		t.Fatalf("archive.Get: %v", err)
	}
	if !bytes.Equal(got, res.Response.Raw()) {
		t.Fatalf("archived bytes differ from response")
	}
}

func TestResponder_CheckFailures(t *testing.T) {
	pki := testpki.New(t)
	leaf := pki.Issue("Alice", testpki.ECDSA)
	other := pki.Issue("Bob", testpki.ECDSA)
	otherID, err := ocsp.NewCertID(pki.CA.Cert, other.Cert, crypto.SHA1)
	if err != nil {
		t.Fatalf("NewCertID: %v", err)
	}

	cases := []struct {
		name  string
		reply func(req []byte) []byte
		now   func() time.Time
		check func(error) bool
	}{
		{
			name:  "status",
			reply: func([]byte) []byte { return testpki.StatusOnly(ocsp.TryLater) },
			check: ocsp.IsStatusError,
		},
		{
			name: "stale nonce",
			reply: func([]byte) []byte {
				return pki.OCSP(leaf, testpki.ResponseOptions{Nonce: []byte("stale-nonce-0000")})
			},
			check: func(err error) bool { return errors.Is(err, ocsp.ErrNonceMismatch) },
		},
		{
			name: "wrong signer",
			reply: func(req []byte) []byte {
				return pki.OCSP(leaf, testpki.ResponseOptions{Nonce: nonceOf(t, req), Signer: other})
			},
			check: func(err error) bool { return errors.Is(err, ocsp.ErrSignatureMismatch) },
		},
		{
			name: "other certificate",
			reply: func(req []byte) []byte {
				return pki.OCSP(leaf, testpki.ResponseOptions{Nonce: nonceOf(t, req), CertID: &otherID})
			},
			check: func(err error) bool { return errors.Is(err, ocsp.ErrCertIDNotFound) },
		},
		{
			name: "expired",
			reply: func(req []byte) []byte {
				return pki.OCSP(leaf, testpki.ResponseOptions{Nonce: nonceOf(t, req)})
			},
			now:   func() time.Time { return time.Now().Add(48 * time.Hour) },
			check: func(err error) bool { return errors.Is(err, ocsp.ErrStaleResponse) },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &stubTransport{reply: tc.reply}
			r := &ocsp.Responder{URL: "stub", Cert: pki.Responder.Cert, Transport: tr, Now: tc.now}
			_, err := r.Check(context.Background(), pki.CA.Cert, leaf.Cert)
			if !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.calls != 1 {
				t.Fatalf("calls = %d, want 1", tr.calls)
			}
		})
	}
}

func nonceOf(t *testing.T, req []byte) []byte {
	t.Helper()
	parsed, err := ocsp.ParseRequest(req)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	return parsed.Nonce
}
