// Package testkit holds conformance suites shared by storage implementations.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/digidoc/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("signed container bytes")

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := storage.CIDOf(want)
		if err != nil {
			t.Fatalf("CIDOf failed: %v", err)
		}
		if !id.Equals(wantID) {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := storage.CIDOf(b)
		if err != nil {
			t.Fatalf("CIDOf failed: %v", err)
		}

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if _, err := cas.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("ArchiveManifest", func(t *testing.T) {
		a := storage.NewArchive(newCAS(t))
		rec, err := a.Put(storage.KindOCSPResponse, "serial:01", []byte("response"))
		if err != nil {
			t.Fatalf("Archive.Put failed: %v", err)
		}
		got, err := a.Get(rec)
		if err != nil || string(got) != "response" {
			t.Fatalf("Archive.Get: %q, %v", got, err)
		}
		mid, err := a.Manifest()
		if err != nil {
			t.Fatalf("Manifest failed: %v", err)
		}
		recs, err := storage.LoadManifest(a.Store, mid)
		if err != nil {
			t.Fatalf("LoadManifest failed: %v", err)
		}
		if len(recs) != 1 || recs[0].CID != rec.CID || recs[0].Kind != storage.KindOCSPResponse {
			t.Fatalf("unexpected manifest: %+v", recs)
		}
	})
}
