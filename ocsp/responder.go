package ocsp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"xdao.co/digidoc/storage"
	"xdao.co/digidoc/x509cert"
)

// MaxResponseBytes bounds the body read from a responder.
const MaxResponseBytes = 1 << 20

// Transport delivers a DER OCSPRequest and returns the DER response.
type Transport interface {
	RoundTrip(ctx context.Context, url string, request []byte) ([]byte, error)
}

// HTTPTransport posts requests as application/ocsp-request (RFC 6960 A.1).
type HTTPTransport struct {
	Client *http.Client
}

func (t HTTPTransport) RoundTrip(ctx context.Context, url string, request []byte) ([]byte, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocsp: post %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocsp: %s answered %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("ocsp: read %s: %w", url, err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("ocsp: response from %s exceeds %d bytes", url, MaxResponseBytes)
	}
	return body, nil
}

// Responder queries an OCSP service and validates its answers against a
// pinned responder certificate.
type Responder struct {
	URL  string
	Cert *x509cert.Certificate

	// Transport defaults to HTTPTransport{}.
	Transport Transport
	// Archive, when set, receives every validated response.
	Archive *storage.Archive
	// Now defaults to time.Now; it decides response freshness.
	Now func() time.Time
	// Skew tolerates clock differences on thisUpdate/nextUpdate.
	Skew time.Duration
}

// Result is a validated answer for one certificate.
type Result struct {
	Response *Response
	Single   SingleResponse
	Nonce    []byte
	CertID   CertID
	// Archived is the archive record, when an archive is configured.
	Archived *storage.Record
}

// Check sends a nonce-bearing request for subject and validates the reply:
// successful status, signature by the pinned responder, matching nonce, an
// entry for the CertID and a fresh validity window.
func (r *Responder) Check(ctx context.Context, issuer, subject *x509cert.Certificate) (*Result, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "ocsp"))
	if r.Cert == nil {
		return nil, errors.New("ocsp: responder certificate is not configured")
	}
	nonce, err := NewNonce(nil)
	if err != nil {
		return nil, err
	}
	reqDER, id, err := CreateRequest(issuer, subject, nonce)
	if err != nil {
		return nil, err
	}

	transport := r.Transport
	if transport == nil {
		transport = HTTPTransport{}
	}
	logger.Log(ctx, slog.LevelDebug, "sending ocsp request",
		slog.String("url", r.URL),
		slog.String("serial", subject.SerialHex()),
	)
	der, err := transport.RoundTrip(ctx, r.URL, reqDER)
	if err != nil {
		return nil, err
	}

	resp, err := Parse(der)
	if err != nil {
		return nil, err
	}
	ok, err := resp.IsSignedBy(r.Cert)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignatureMismatch
	}
	if !resp.IsNonceEqualTo(nonce) {
		return nil, ErrNonceMismatch
	}
	single, err := resp.RevocationStatus(id)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	t := now()
	if !single.ValidAt(t.Add(r.Skew)) && !single.ValidAt(t.Add(-r.Skew)) {
		return nil, fmt.Errorf("%w: thisUpdate %s nextUpdate %s", ErrStaleResponse,
			single.ThisUpdate.Format(time.RFC3339), single.NextUpdate.Format(time.RFC3339))
	}

	res := &Result{Response: resp, Single: single, Nonce: nonce, CertID: id}
	if r.Archive != nil {
		rec, err := r.Archive.Put(storage.KindOCSPResponse, subject.SerialHex(), der)
		if err != nil {
			return nil, err
		}
		res.Archived = &rec
	}
	logger.Log(ctx, slog.LevelInfo, "ocsp status received",
		slog.String("serial", subject.SerialHex()),
		slog.String("status", single.Status.String()),
		slog.Time("producedAt", resp.ProducedAt),
	)
	return res, nil
}
