// Package backend defines the remote signing service consumed by the
// synchronization protocol: sessions, data files, signature preparation and
// finalization, and document retrieval.
package backend

import "context"

// StatusOK is the per-signature status of a signature the service accepted.
const StatusOK = "OK"

// SessionID identifies a server-side session.
type SessionID string

// File is a data file pushed to the service.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Content  []byte
}

// FileInfo describes a data file held by the service.
type FileInfo struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// SignatureInfo is the service's view of one signature.
type SignatureInfo struct {
	ID     string
	Status string
	// Certificate is the signer's DER certificate, when known.
	Certificate []byte
	SignerName  string
	// Error explains a non-OK status.
	Error string
}

// OK reports whether the service accepted the signature.
func (s SignatureInfo) OK() bool { return s.Status == StatusOK }

// Document is the content of a session opened from existing document bytes.
type Document struct {
	Files      []FileInfo
	Signatures []SignatureInfo
}

// Session is the result of OpenSession. Document is nil for an empty session.
type Session struct {
	ID       SessionID
	Document *Document
}

// Challenge is the result of PrepareSignature. The service assigns the id
// and the challenge together.
type Challenge struct {
	SignatureID string
	Challenge   []byte
}

// Backend is the remote signing service. All calls block until the service
// has committed the operation.
type Backend interface {
	OpenSession(ctx context.Context, document []byte) (Session, error)
	CreateContainer(ctx context.Context, session SessionID) error
	AddFile(ctx context.Context, session SessionID, file File) (FileInfo, error)
	PrepareSignature(ctx context.Context, session SessionID, certificate []byte, certificateID string) (Challenge, error)
	// FinalizeSignature returns the status of every signature in the session.
	FinalizeSignature(ctx context.Context, session SessionID, signatureID string, solution []byte) ([]SignatureInfo, error)
	RemoveSignature(ctx context.Context, session SessionID, signatureID string) error
	GetContents(ctx context.Context, session SessionID) ([]byte, error)
	CloseSession(ctx context.Context, session SessionID) error
}

// StatusOf returns the entry for id in a FinalizeSignature result.
func StatusOf(infos []SignatureInfo, id string) (SignatureInfo, bool) {
	for _, s := range infos {
		if s.ID == id {
			return s, true
		}
	}
	return SignatureInfo{}, false
}
