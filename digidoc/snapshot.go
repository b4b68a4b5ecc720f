package digidoc

import (
	"encoding/json"
	"fmt"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/storage"
)

const snapshotVersion = 1

type snapshot struct {
	Version    int                 `json:"version"`
	Session    string              `json:"session"`
	Next       Handle              `json:"next"`
	Closed     bool                `json:"closed,omitempty"`
	Files      []fileSnapshot      `json:"files"`
	Signatures []signatureSnapshot `json:"signatures"`
}

type fileSnapshot struct {
	Handle   Handle `json:"handle"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"content,omitempty"`
	Remote   bool   `json:"remote,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`
	Synced   bool   `json:"synced"`
}

type signatureSnapshot struct {
	Handle      Handle       `json:"handle"`
	State       string       `json:"state"`
	ID          string       `json:"id,omitempty"`
	Certificate *Certificate `json:"certificate,omitempty"`
	Challenge   []byte       `json:"challenge,omitempty"`
	Solution    []byte       `json:"solution,omitempty"`
	Status      string       `json:"status,omitempty"`
	Synced      bool         `json:"synced"`
}

func (c *Container) isSynced(e Entity) bool {
	if c.tracker != nil {
		return c.tracker.Has(e)
	}
	return c.synced[e.Handle()]
}

// MarshalJSON snapshots the container, including which entities the service
// already knows.
func (c *Container) MarshalJSON() ([]byte, error) {
	s := snapshot{
		Version:    snapshotVersion,
		Session:    string(c.session),
		Next:       c.next,
		Closed:     c.closed,
		Files:      make([]fileSnapshot, 0, len(c.files)),
		Signatures: make([]signatureSnapshot, 0, len(c.signatures)),
	}
	for _, f := range c.files {
		s.Files = append(s.Files, fileSnapshot{
			Handle:   f.handle,
			Name:     f.name,
			MimeType: f.mimeType,
			Size:     f.size,
			Content:  f.content,
			Remote:   f.content == nil,
			RemoteID: f.remoteID,
			Synced:   c.isSynced(f),
		})
	}
	for _, r := range c.signatures {
		s.Signatures = append(s.Signatures, signatureSnapshot{
			Handle:      r.handle,
			State:       r.state.String(),
			ID:          r.id,
			Certificate: r.certificate,
			Challenge:   r.challenge,
			Solution:    r.solution,
			Status:      r.Status,
			Synced:      c.isSynced(r),
		})
	}
	return json.Marshal(s)
}

// UnmarshalJSON restores a snapshot. The result is not merged: call
// Client.Merge before Update.
func (c *Container) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBrokenSnapshot, s.Version)
	}
	out := Container{
		session: backend.SessionID(s.Session),
		next:    s.Next,
		closed:  s.Closed,
		synced:  make(map[Handle]bool),
	}
	seen := make(map[Handle]bool)
	claim := func(h Handle) error {
		if h == 0 || h > s.Next || seen[h] {
			return fmt.Errorf("%w: handle %d is invalid or reused", ErrBrokenSnapshot, h)
		}
		seen[h] = true
		return nil
	}
	for _, f := range s.Files {
		if err := claim(f.Handle); err != nil {
			return err
		}
		if f.Remote && !f.Synced {
			return fmt.Errorf("%w: remote file %q is not marked synced", ErrBrokenSnapshot, f.Name)
		}
		entry := &FileEntry{
			handle:   f.Handle,
			name:     f.Name,
			mimeType: f.MimeType,
			size:     f.Size,
			remoteID: f.RemoteID,
		}
		if !f.Remote {
			entry.content = f.Content
			if entry.content == nil {
				entry.content = []byte{}
			}
		}
		out.files = append(out.files, entry)
		out.synced[f.Handle] = f.Synced
	}
	for _, r := range s.Signatures {
		if err := claim(r.Handle); err != nil {
			return err
		}
		state, err := parseState(r.State)
		if err != nil {
			return err
		}
		rec := &SignatureRecord{
			handle:      r.Handle,
			state:       state,
			id:          r.ID,
			certificate: r.Certificate,
			challenge:   r.Challenge,
			solution:    r.Solution,
			Status:      r.Status,
		}
		if err := rec.validate(); err != nil {
			return err
		}
		// Only a Created record is unknown to the service.
		if r.Synced == (state == Created) {
			return fmt.Errorf("%w: %s signature %q has synced=%t", ErrBrokenSnapshot, state, r.ID, r.Synced)
		}
		out.signatures = append(out.signatures, rec)
		out.synced[r.Handle] = r.Synced
	}
	*c = out
	return nil
}

func parseState(s string) (State, error) {
	for st := Created; st <= Rejected; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown signature state %q", ErrBrokenSnapshot, s)
}

// SaveSnapshot stores the container snapshot in the archive.
func SaveSnapshot(a *storage.Archive, c *Container) (storage.Record, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return storage.Record{}, err
	}
	return a.Put(storage.KindSnapshot, string(c.session), b)
}

// LoadSnapshot restores a container saved by SaveSnapshot.
func LoadSnapshot(a *storage.Archive, rec storage.Record) (*Container, error) {
	if rec.Kind != storage.KindSnapshot {
		return nil, fmt.Errorf("digidoc: record %s is a %s, not a snapshot", rec.CID, rec.Kind)
	}
	b, err := a.Get(rec)
	if err != nil {
		return nil, err
	}
	c := new(Container)
	if err := json.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}
