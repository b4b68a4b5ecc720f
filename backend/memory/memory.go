// Package memory is an in-process signing service. It keeps sessions in
// memory, issues XAdES challenges, verifies solutions against the signer's
// certificate, optionally checks revocation over OCSP, and exports
// documents as ASiC-E style ZIP containers.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/x509cert"
	"xdao.co/digidoc/xades"
)

// Signature statuses besides backend.StatusOK.
const (
	StatusPrepared = "PREPARED"
	StatusInvalid  = "INVALID"
	StatusRevoked  = "REVOKED"
)

// Service implements backend.Backend. The zero value is not usable; call New.
type Service struct {
	// Canonicalizer defaults to xades.Serialized.
	Canonicalizer xades.Canonicalizer
	// Revocation, when set, is consulted before a signature is accepted.
	Revocation RevocationChecker
	Now        func() time.Time
	// MaxFileBytes rejects larger files with status 413 when non-zero.
	MaxFileBytes int64

	mu       sync.Mutex
	sessions map[backend.SessionID]*session
}

type session struct {
	container  bool
	files      []*file
	signatures []*signature
	nextFile   int
	nextSig    int
}

type file struct {
	info    backend.FileInfo
	content []byte
}

type signature struct {
	id     string
	doc    *xades.Signature
	cert   *x509cert.Certificate
	status string
	reason string
}

func (s *signature) info() backend.SignatureInfo {
	out := backend.SignatureInfo{ID: s.id, Status: s.status, Error: s.reason}
	if s.cert != nil {
		out.Certificate = s.cert.Raw()
		out.SignerName = s.cert.SubjectCommonName()
	}
	return out
}

var _ backend.Backend = (*Service)(nil)

func New() *Service {
	return &Service{sessions: make(map[backend.SessionID]*session)}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) canon() xades.Canonicalizer {
	if s.Canonicalizer != nil {
		return s.Canonicalizer
	}
	return xades.Serialized
}

// session returns the session; callers hold s.mu.
func (s *Service) session(id backend.SessionID) (*session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, backend.Errorf(backend.CodeBadInput, "unknown session %q", id)
	}
	return sess, nil
}

func newSessionID() (backend.SessionID, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return backend.SessionID(hex.EncodeToString(b)), nil
}

func (s *Service) OpenSession(ctx context.Context, document []byte) (backend.Session, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "backend"))
	id, err := newSessionID()
	if err != nil {
		return backend.Session{}, backend.NewProtocolError(backend.CodeService, err.Error())
	}
	sess := &session{}
	var doc *backend.Document
	if len(document) > 0 {
		files, sigs, err := readDocument(document)
		if err != nil {
			return backend.Session{}, backend.NewProtocolError(backend.CodeBadInput, err.Error())
		}
		sess.container = true
		contents := make(map[string][]byte, len(files))
		doc = &backend.Document{}
		for _, f := range files {
			f.info.ID = fmt.Sprintf("D%d", sess.nextFile)
			sess.nextFile++
			sess.files = append(sess.files, f)
			contents[f.info.Name] = f.content
			doc.Files = append(doc.Files, f.info)
		}
		for _, x := range sigs {
			sig := &signature{id: x.ID, doc: x, status: backend.StatusOK}
			if cert, err := x.SigningCertificate(); err == nil {
				sig.cert = cert
			}
			if err := x.Verify(s.canon(), contents); err != nil {
				sig.status, sig.reason = StatusInvalid, err.Error()
			}
			sess.signatures = append(sess.signatures, sig)
			sess.nextSig++
			doc.Signatures = append(doc.Signatures, sig.info())
		}
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	logger.Log(ctx, slog.LevelDebug, "session opened", slog.String("session", string(id)), slog.Bool("document", doc != nil))
	return backend.Session{ID: id, Document: doc}, nil
}

func (s *Service) CreateContainer(_ context.Context, id backend.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	if sess.container {
		return backend.NewProtocolError(backend.CodeBadInput, "session already holds a container")
	}
	sess.container = true
	return nil
}

func (s *Service) AddFile(_ context.Context, id backend.SessionID, f backend.File) (backend.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(id)
	if err != nil {
		return backend.FileInfo{}, err
	}
	switch {
	case !sess.container:
		return backend.FileInfo{}, backend.NewProtocolError(backend.CodeBadInput, "no container in session")
	case len(sess.signatures) > 0:
		return backend.FileInfo{}, backend.NewProtocolError(backend.CodeBadInput, "container is already signed")
	case f.Name == "":
		return backend.FileInfo{}, backend.NewProtocolError(backend.CodeMissingInput, "file name is required")
	case f.Size != int64(len(f.Content)):
		return backend.FileInfo{}, backend.Errorf(backend.CodeBadInput, "file %q: declared size %d, got %d bytes", f.Name, f.Size, len(f.Content))
	case s.MaxFileBytes > 0 && f.Size > s.MaxFileBytes:
		return backend.FileInfo{}, backend.NewProtocolError(backend.CodeTooLarge, "")
	}
	for _, existing := range sess.files {
		if existing.info.Name == f.Name {
			return backend.FileInfo{}, backend.Errorf(backend.CodeBadInput, "duplicate file %q", f.Name)
		}
	}
	info := backend.FileInfo{ID: fmt.Sprintf("D%d", sess.nextFile), Name: f.Name, MimeType: f.MimeType, Size: f.Size}
	sess.nextFile++
	sess.files = append(sess.files, &file{info: info, content: append([]byte(nil), f.Content...)})
	return info, nil
}

func (s *Service) PrepareSignature(ctx context.Context, id backend.SessionID, certificate []byte, certificateID string) (backend.Challenge, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "backend"))
	if len(certificate) == 0 {
		return backend.Challenge{}, backend.NewProtocolError(backend.CodeMissingCertificate, "")
	}
	cert, err := x509cert.Parse(certificate)
	if err != nil {
		return backend.Challenge{}, backend.NewProtocolError(backend.CodeUnverifiableCert, err.Error())
	}
	now := s.now()
	if !cert.ValidAt(now) {
		return backend.Challenge{}, backend.NewProtocolError(backend.CodeCertificateExpired, "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(id)
	if err != nil {
		return backend.Challenge{}, err
	}
	if !sess.container {
		return backend.Challenge{}, backend.NewProtocolError(backend.CodeBadInput, "no container in session")
	}
	files := make([]xades.DataFile, 0, len(sess.files))
	for _, f := range sess.files {
		files = append(files, xades.DataFile{Name: f.info.Name, MimeType: f.info.MimeType, Content: f.content})
	}
	sigID := fmt.Sprintf("S%d", sess.nextSig)
	for findSignature(sess, sigID) != nil {
		sess.nextSig++
		sigID = fmt.Sprintf("S%d", sess.nextSig)
	}
	doc, err := xades.New(xades.Params{
		ID:            sigID,
		Certificate:   cert,
		Files:         files,
		SigningTime:   now,
		Canonicalizer: s.canon(),
	})
	if err != nil {
		return backend.Challenge{}, backend.NewProtocolError(backend.CodeUnverifiableCert, err.Error())
	}
	challenge, err := doc.Challenge(s.canon())
	if err != nil {
		return backend.Challenge{}, backend.NewProtocolError(backend.CodeService, err.Error())
	}
	sess.nextSig++
	sess.signatures = append(sess.signatures, &signature{id: sigID, doc: doc, cert: cert, status: StatusPrepared})
	logger.Log(ctx, slog.LevelDebug, "signature prepared",
		slog.String("session", string(id)),
		slog.String("signature", sigID),
		slog.String("token", certificateID),
		slog.String("signer", cert.SubjectCommonName()),
	)
	return backend.Challenge{SignatureID: sigID, Challenge: challenge}, nil
}

func (s *Service) FinalizeSignature(ctx context.Context, id backend.SessionID, signatureID string, solution []byte) ([]backend.SignatureInfo, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "backend"))
	s.mu.Lock()
	sess, err := s.session(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sig := findSignature(sess, signatureID)
	if sig == nil {
		s.mu.Unlock()
		return nil, backend.Errorf(backend.CodeBadInput, "unknown signature %q", signatureID)
	}
	if sig.status != StatusPrepared {
		infos := sess.infos()
		s.mu.Unlock()
		return infos, nil
	}
	doc, cert := sig.doc, sig.cert
	s.mu.Unlock()

	status, reason, evidence := s.check(ctx, doc, cert, solution)

	s.mu.Lock()
	defer s.mu.Unlock()
	if findSignature(sess, signatureID) == sig && sig.status == StatusPrepared {
		sig.status, sig.reason = status, reason
		if status == backend.StatusOK {
			doc.SetValue(solution)
			if evidence != nil {
				doc.AddOCSP(evidence)
			}
		}
	}
	logger.Log(ctx, slog.LevelDebug, "signature finalized",
		slog.String("session", string(id)),
		slog.String("signature", signatureID),
		slog.String("status", sig.status),
	)
	return sess.infos(), nil
}

// check validates a solution; it runs without s.mu held since revocation
// checking may go over the network.
func (s *Service) check(ctx context.Context, doc *xades.Signature, cert *x509cert.Certificate, solution []byte) (status, reason string, evidence []byte) {
	ok, err := doc.VerifyValue(s.canon(), solution)
	if err != nil {
		return StatusInvalid, err.Error(), nil
	}
	if !ok {
		return StatusInvalid, "signature value does not verify", nil
	}
	if s.Revocation == nil {
		return backend.StatusOK, "", nil
	}
	evidence, err = s.Revocation.CheckRevocation(ctx, cert)
	if err != nil {
		if code, _ := backend.CodeOf(err); code == backend.CodeCertificateRevoked {
			return StatusRevoked, err.Error(), nil
		}
		return StatusInvalid, err.Error(), nil
	}
	return backend.StatusOK, "", evidence
}

func (s *Service) RemoveSignature(_ context.Context, id backend.SessionID, signatureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	for i, sig := range sess.signatures {
		if sig.id == signatureID {
			sess.signatures = append(sess.signatures[:i], sess.signatures[i+1:]...)
			return nil
		}
	}
	return backend.Errorf(backend.CodeBadInput, "unknown signature %q", signatureID)
}

func (s *Service) GetContents(_ context.Context, id backend.SessionID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if !sess.container {
		return nil, backend.NewProtocolError(backend.CodeBadInput, "no container in session")
	}
	var sealed []*xades.Signature
	for _, sig := range sess.signatures {
		if sig.status == backend.StatusOK {
			sealed = append(sealed, sig.doc)
		}
	}
	doc, err := writeDocument(sess.files, sealed)
	if err != nil {
		return nil, backend.NewProtocolError(backend.CodeService, err.Error())
	}
	return doc, nil
}

func (s *Service) CloseSession(_ context.Context, id backend.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.session(id); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

// Sessions returns the number of open sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func findSignature(sess *session, id string) *signature {
	for _, sig := range sess.signatures {
		if sig.id == id {
			return sig
		}
	}
	return nil
}

func (sess *session) infos() []backend.SignatureInfo {
	out := make([]backend.SignatureInfo, 0, len(sess.signatures))
	for _, sig := range sess.signatures {
		out = append(out, sig.info())
	}
	return out
}
