// Package digidoc keeps a local container model (data files and signatures)
// in step with a remote signing service. Client.Update pushes what the
// service has not seen yet, in a fixed order, and drives each signature
// through its lifecycle.
package digidoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	slogcontext "github.com/veqryn/slog-context"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/storage"
)

// Client runs the synchronization protocol against a backend.
type Client struct {
	backend   backend.Backend
	autoMerge bool
	archive   *storage.Archive
}

type Option func(*Client)

// WithAutoMerge makes Update merge an unmerged container instead of failing.
func WithAutoMerge() Option {
	return func(c *Client) { c.autoMerge = true }
}

// WithArchive stores pushed file bytes and fetched documents as evidence.
func WithArchive(a *storage.Archive) Option {
	return func(c *Client) { c.archive = a }
}

func NewClient(b backend.Backend, opts ...Option) *Client {
	c := &Client{backend: b}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rejection describes a signature the service refused during finalize.
type Rejection struct {
	SignatureID string
	Status      string
	Reason      string
}

// Report summarizes the work done by one Update call.
type Report struct {
	FilesPushed      int
	ChallengesIssued int
	Sealed           []string
	Rejected         []Rejection
}

// Create opens an empty session and creates a container in it.
func (c *Client) Create(ctx context.Context) (*Container, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "digidoc"))
	sess, err := c.backend.OpenSession(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("digidoc: open session: %w", err)
	}
	if err := c.backend.CreateContainer(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("digidoc: create container: %w", err)
	}
	ct := newContainer(sess.ID)
	ct.tracker = NewTracker()
	logger.Log(ctx, slog.LevelDebug, "container created", slog.String("session", string(sess.ID)))
	return ct, nil
}

// Open starts a session from existing document bytes. Its files are remote
// and its signatures sealed; all of them count as synchronized.
func (c *Client) Open(ctx context.Context, document []byte) (*Container, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "digidoc"))
	if len(document) == 0 {
		return nil, fmt.Errorf("digidoc: empty document")
	}
	sess, err := c.backend.OpenSession(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("digidoc: open session: %w", err)
	}
	ct := newContainer(sess.ID)
	ct.tracker = NewTracker()
	if sess.Document != nil {
		for _, info := range sess.Document.Files {
			ct.tracker.Add(ct.hydrateFile(info))
		}
		for _, info := range sess.Document.Signatures {
			ct.tracker.Add(ct.hydrateSignature(info))
		}
	}
	if c.archive != nil {
		if _, err := c.archive.Put(storage.KindDocument, string(sess.ID), document); err != nil {
			logger.Log(ctx, slog.LevelWarn, "archiving document failed", slog.String("session", string(sess.ID)), slog.String("error", err.Error()))
		}
	}
	logger.Log(ctx, slog.LevelDebug, "document opened",
		slog.String("session", string(sess.ID)),
		slog.Int("files", len(ct.files)),
		slog.Int("signatures", len(ct.signatures)),
	)
	return ct, nil
}

// Merge registers ct with a new tracker. Entities a snapshot recorded as
// synchronized are tracked; everything else is pushed by the next Update.
// Merging an already merged container is a no-op.
func (c *Client) Merge(ct *Container) {
	if ct.tracker != nil {
		return
	}
	t := NewTracker()
	for _, f := range ct.files {
		if ct.synced[f.handle] {
			t.Add(f)
		}
	}
	for _, s := range ct.signatures {
		if ct.synced[s.handle] {
			t.Add(s)
		}
	}
	ct.tracker = t
	ct.synced = nil
}

// Update reconciles ct with the service, strictly in this order:
//
//  1. push every untracked file;
//  2. prepare every untracked signature (Created -> ChallengeIssued);
//  3. finalize every Solved signature (Solved -> Sealed or Rejected).
//
// A failure in step 1 or 2 aborts the call; items that already succeeded
// stay tracked. Failures in step 3 are collected per signature and returned
// joined after all signatures were processed. A rejected signature is
// removed from the service and from ct.
func (c *Client) Update(ctx context.Context, ct *Container) (Report, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "digidoc"), slog.String("session", string(ct.session)))
	var report Report
	if ct.closed {
		return report, ErrClosed
	}
	if ct.tracker == nil {
		if !c.autoMerge {
			return report, &NotMergedError{Session: string(ct.session)}
		}
		c.Merge(ct)
	}

	for _, f := range FilterUntracked(ct.tracker, ct.files) {
		if f.Remote() {
			return report, fmt.Errorf("digidoc: remote file %q is not tracked", f.name)
		}
		logger.Log(ctx, slog.LevelDebug, "pushing file", slog.String("name", f.name), slog.Int64("size", f.size))
		info, err := c.backend.AddFile(ctx, ct.session, backend.File{
			Name:     f.name,
			MimeType: f.mimeType,
			Size:     f.size,
			Content:  f.content,
		})
		if err != nil {
			return report, fmt.Errorf("digidoc: add file %q: %w", f.name, err)
		}
		f.remoteID = info.ID
		ct.tracker.Add(f)
		report.FilesPushed++
		if c.archive != nil {
			if _, err := c.archive.Put(storage.KindDocument, f.name, f.content); err != nil {
				logger.Log(ctx, slog.LevelWarn, "archiving file failed", slog.String("name", f.name), slog.String("error", err.Error()))
			}
		}
	}

	for _, s := range FilterUntracked(ct.tracker, ct.signatures) {
		if s.state != Created || s.certificate == nil {
			return report, s.transitionError(ChallengeIssued, "untracked signature is not pending")
		}
		logger.Log(ctx, slog.LevelDebug, "preparing signature", slog.String("certificate", s.certificate.ID))
		ch, err := c.backend.PrepareSignature(ctx, ct.session, s.certificate.DER, s.certificate.ID)
		if err != nil {
			return report, fmt.Errorf("digidoc: prepare signature: %w", err)
		}
		if err := s.issue(ch.SignatureID, ch.Challenge); err != nil {
			return report, err
		}
		ct.tracker.Add(s)
		report.ChallengesIssued++
	}

	var errs []error
	for _, s := range ct.Signatures() {
		if s.state != Solved {
			continue
		}
		if err := c.finalize(ctx, logger, ct, s, &report); err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

func (c *Client) finalize(ctx context.Context, logger *slog.Logger, ct *Container, s *SignatureRecord, report *Report) error {
	logger.Log(ctx, slog.LevelDebug, "finalizing signature", slog.String("signature", s.id))
	infos, err := c.backend.FinalizeSignature(ctx, ct.session, s.id, s.solution)
	if err != nil {
		return &FinalizeError{SignatureID: s.id, Err: err}
	}
	info, found := backend.StatusOf(infos, s.id)
	if found {
		s.Status = info.Status
	}
	if found && info.OK() {
		if err := s.seal(); err != nil {
			return err
		}
		report.Sealed = append(report.Sealed, s.id)
		return nil
	}

	rejection := Rejection{SignatureID: s.id, Status: info.Status, Reason: info.Error}
	if !found {
		rejection.Reason = "service did not report the signature"
	}
	logger.Log(ctx, slog.LevelWarn, "signature rejected, removing",
		slog.String("signature", s.id),
		slog.String("status", rejection.Status),
		slog.String("reason", rejection.Reason),
	)
	var compErr error
	if err := c.backend.RemoveSignature(ctx, ct.session, s.id); err != nil {
		logger.Log(ctx, slog.LevelWarn, "removing rejected signature failed",
			slog.String("signature", s.id), slog.String("error", err.Error()))
		compErr = &CompensationError{SignatureID: s.id, Err: err}
	}
	if err := s.reject(); err != nil {
		return err
	}
	ct.removeSignature(s)
	report.Rejected = append(report.Rejected, rejection)
	return compErr
}

// Contents fetches the signed document from the service.
func (c *Client) Contents(ctx context.Context, ct *Container) ([]byte, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "digidoc"))
	if ct.closed {
		return nil, ErrClosed
	}
	doc, err := c.backend.GetContents(ctx, ct.session)
	if err != nil {
		return nil, fmt.Errorf("digidoc: get contents: %w", err)
	}
	if c.archive != nil {
		if _, err := c.archive.Put(storage.KindDocument, string(ct.session), doc); err != nil {
			logger.Log(ctx, slog.LevelWarn, "archiving document failed", slog.String("session", string(ct.session)), slog.String("error", err.Error()))
		}
	}
	return doc, nil
}

// Close ends the session. The container cannot be updated afterwards.
func (c *Client) Close(ctx context.Context, ct *Container) error {
	if ct.closed {
		return nil
	}
	if err := c.backend.CloseSession(ctx, ct.session); err != nil {
		return fmt.Errorf("digidoc: close session: %w", err)
	}
	ct.closed = true
	return nil
}
