package digidoc

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/digidoc/backend"
)

// FileEntry is a data file of a container. Files added locally carry their
// bytes; files hydrated from an opened document only exist on the service.
type FileEntry struct {
	handle   Handle
	name     string
	mimeType string
	size     int64
	content  []byte
	remoteID string
}

func (f *FileEntry) Handle() Handle   { return f.handle }
func (f *FileEntry) Name() string     { return f.name }
func (f *FileEntry) MimeType() string { return f.mimeType }
func (f *FileEntry) Size() int64      { return f.size }

// Content returns the local bytes, or nil for a remote file.
func (f *FileEntry) Content() []byte { return f.content }

// Remote reports whether the file has no local bytes.
func (f *FileEntry) Remote() bool { return f.content == nil }

// RemoteID is the service's id for the file, empty until pushed.
func (f *FileEntry) RemoteID() string { return f.remoteID }

// Container is the local model of one signing session: data files and
// signatures. Only Client.Update transfers changes to the service.
//
// A Container is not safe for concurrent use.
type Container struct {
	session    backend.SessionID
	next       Handle
	files      []*FileEntry
	signatures []*SignatureRecord

	tracker *Tracker
	// synced holds the handles a snapshot recorded as known to the service,
	// until Merge turns them into a tracker.
	synced map[Handle]bool
	closed bool
}

func newContainer(session backend.SessionID) *Container {
	return &Container{session: session}
}

// Session returns the service session the container belongs to.
func (c *Container) Session() backend.SessionID { return c.session }

// Merged reports whether the container has a tracker.
func (c *Container) Merged() bool { return c.tracker != nil }

// Tracker returns the container's tracker, nil before Merge.
func (c *Container) Tracker() *Tracker { return c.tracker }

// Files returns the data files in insertion order.
func (c *Container) Files() []*FileEntry {
	return append([]*FileEntry(nil), c.files...)
}

// Signatures returns the active signatures (pending or sealed) in insertion order.
func (c *Container) Signatures() []*SignatureRecord {
	return append([]*SignatureRecord(nil), c.signatures...)
}

// Signature looks up a signature by service id.
func (c *Container) Signature(id string) (*SignatureRecord, bool) {
	for _, s := range c.signatures {
		if s.id != "" && s.id == id {
			return s, true
		}
	}
	return nil, false
}

func (c *Container) alloc() Handle {
	c.next++
	return c.next
}

// AddFile adds a data file. Files must be added before any signature.
func (c *Container) AddFile(name, mimeType string, content []byte) (*FileEntry, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if len(c.signatures) > 0 {
		return nil, ErrSignedContainer
	}
	if name == "" {
		return nil, fmt.Errorf("digidoc: file name is required")
	}
	for _, f := range c.files {
		if f.name == name {
			return nil, fmt.Errorf("digidoc: duplicate file name %q", name)
		}
	}
	if mimeType == "" {
		mimeType = DetectMimeType(name, content)
	}
	if content == nil {
		content = []byte{}
	}
	f := &FileEntry{
		handle:   c.alloc(),
		name:     name,
		mimeType: mimeType,
		size:     int64(len(content)),
		content:  append([]byte(nil), content...),
	}
	c.files = append(c.files, f)
	return f, nil
}

// AddFileFromPath reads a file from disk and adds it under its base name.
func (c *Container) AddFileFromPath(path string) (*FileEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	return c.AddFile(name, DetectMimeType(name, b), b)
}

// DetectMimeType guesses a media type from the file extension, then from
// the content.
func DetectMimeType(name string, content []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	if len(content) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(content)
}

// AddSignature adds a signature for cert in state Created. The challenge is
// issued by the next Update.
func (c *Container) AddSignature(cert Certificate) (*SignatureRecord, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if len(cert.DER) == 0 {
		return nil, fmt.Errorf("digidoc: certificate bytes are required")
	}
	if _, err := cert.Parse(); err != nil {
		return nil, err
	}
	s := newSignature(c.alloc(), cert)
	c.signatures = append(c.signatures, s)
	return s, nil
}

func (c *Container) hydrateFile(info backend.FileInfo) *FileEntry {
	f := &FileEntry{
		handle:   c.alloc(),
		name:     info.Name,
		mimeType: info.MimeType,
		size:     info.Size,
		remoteID: info.ID,
	}
	c.files = append(c.files, f)
	return f
}

func (c *Container) hydrateSignature(info backend.SignatureInfo) *SignatureRecord {
	var cert *Certificate
	if len(info.Certificate) > 0 {
		cert = &Certificate{DER: append([]byte(nil), info.Certificate...)}
	}
	s := restoreSignature(c.alloc(), info.ID, cert)
	s.Status = info.Status
	c.signatures = append(c.signatures, s)
	return s
}

func (c *Container) removeSignature(target *SignatureRecord) {
	for i, s := range c.signatures {
		if s == target {
			c.signatures = append(c.signatures[:i], c.signatures[i+1:]...)
			return
		}
	}
}
