package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
)

// Kind classifies an evidence object.
type Kind string

const (
	KindDocument     Kind = "document"
	KindOCSPResponse Kind = "ocsp-response"
	KindCertificate  Kind = "certificate"
	KindSnapshot     Kind = "snapshot"
)

// Record describes one archived object.
type Record struct {
	Kind    Kind      `json:"kind"`
	CID     string    `json:"cid"`
	Size    int       `json:"size"`
	Subject string    `json:"subject,omitempty"`
	At      time.Time `json:"at"`
}

// Archive stores evidence in a CAS and keeps an ordered record of what was
// stored. It is safe for concurrent use.
type Archive struct {
	Store CAS
	Now   func() time.Time

	mu      sync.Mutex
	records []Record
}

func NewArchive(store CAS) *Archive {
	return &Archive{Store: store, Now: time.Now}
}

// Put stores data and appends a record. subject is free-form, e.g. a
// signature id or certificate serial.
func (a *Archive) Put(kind Kind, subject string, data []byte) (Record, error) {
	if a == nil || a.Store == nil {
		return Record{}, ErrNoStore
	}
	id, err := a.Store.Put(data)
	if err != nil {
		return Record{}, fmt.Errorf("storage: archive %s: %w", kind, err)
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	rec := Record{Kind: kind, CID: id.String(), Size: len(data), Subject: subject, At: now().UTC()}
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
	return rec, nil
}

// Get returns the bytes of rec, verified against its CID.
func (a *Archive) Get(rec Record) ([]byte, error) {
	if a == nil || a.Store == nil {
		return nil, ErrNoStore
	}
	id, err := ParseCID(rec.CID)
	if err != nil {
		return nil, err
	}
	b, err := a.Store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := verify(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Records returns a copy of the records in insertion order.
func (a *Archive) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Record(nil), a.records...)
}

// Manifest stores the record list itself as JSON and returns its CID.
func (a *Archive) Manifest() (cid.Cid, error) {
	if a == nil || a.Store == nil {
		return cid.Undef, ErrNoStore
	}
	b, err := json.Marshal(a.Records())
	if err != nil {
		return cid.Undef, err
	}
	return a.Store.Put(b)
}

// LoadManifest reads a manifest written by Archive.Manifest.
func LoadManifest(store CAS, id cid.Cid) ([]Record, error) {
	b, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("storage: manifest %s: %w", id, err)
	}
	return recs, nil
}
