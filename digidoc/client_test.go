package digidoc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ipfs/go-cid"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/digidoc"
	"xdao.co/digidoc/internal/testpki"
	"xdao.co/digidoc/storage"
)

// fakeBackend records every call and answers from scripted hooks.
type fakeBackend struct {
	calls    []string
	nextSig  int
	document *backend.Document

	addFileErr  map[string]error
	prepareErr  error
	finalizeErr map[string]error
	status      map[string]string
	removeErr   error
}

func (f *fakeBackend) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) OpenSession(_ context.Context, doc []byte) (backend.Session, error) {
	f.record("open")
	s := backend.Session{ID: "sess-1"}
	if doc != nil {
		s.Document = f.document
	}
	return s, nil
}

func (f *fakeBackend) CreateContainer(context.Context, backend.SessionID) error {
	f.record("create")
	return nil
}

func (f *fakeBackend) AddFile(_ context.Context, _ backend.SessionID, file backend.File) (backend.FileInfo, error) {
	f.record("add %s", file.Name)
	if err := f.addFileErr[file.Name]; err != nil {
		return backend.FileInfo{}, err
	}
	return backend.FileInfo{ID: "D-" + file.Name, Name: file.Name, MimeType: file.MimeType, Size: file.Size}, nil
}

func (f *fakeBackend) PrepareSignature(_ context.Context, _ backend.SessionID, _ []byte, certID string) (backend.Challenge, error) {
	f.record("prepare %s", certID)
	if f.prepareErr != nil {
		return backend.Challenge{}, f.prepareErr
	}
	id := fmt.Sprintf("S%d", f.nextSig)
	f.nextSig++
	return backend.Challenge{SignatureID: id, Challenge: []byte("challenge-" + id)}, nil
}

func (f *fakeBackend) FinalizeSignature(_ context.Context, _ backend.SessionID, id string, _ []byte) ([]backend.SignatureInfo, error) {
	f.record("finalize %s", id)
	if err := f.finalizeErr[id]; err != nil {
		return nil, err
	}
	st := backend.StatusOK
	if s, ok := f.status[id]; ok {
		st = s
	}
	return []backend.SignatureInfo{{ID: "unrelated", Status: backend.StatusOK}, {ID: id, Status: st}}, nil
}

func (f *fakeBackend) RemoveSignature(_ context.Context, _ backend.SessionID, id string) error {
	f.record("remove %s", id)
	return f.removeErr
}

func (f *fakeBackend) GetContents(context.Context, backend.SessionID) ([]byte, error) {
	f.record("contents")
	return []byte("document"), nil
}

func (f *fakeBackend) CloseSession(context.Context, backend.SessionID) error {
	f.record("close")
	return nil
}

func (f *fakeBackend) reset() { f.calls = nil }

func token(t *testing.T, id string) digidoc.Certificate {
	t.Helper()
	pki := testpki.New(t)
	return digidoc.Certificate{ID: id, DER: pki.Issue("Signer "+id, testpki.ECDSA).DER}
}

func TestUpdate_Ordering(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	client := digidoc.NewClient(fb)
	ct, err := client.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fb.reset()

	if _, err := ct.AddFile("a.txt", "text/plain", []byte("a")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := ct.AddFile("b.txt", "text/plain", []byte("b")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	sig, err := ct.AddSignature(token(t, "card-1"))
	if err != nil {
		t.Fatalf("AddSignature: %v", err)
	}

	report, err := client.Update(ctx, ct)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"add a.txt", "add b.txt", "prepare card-1"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(digidoc.Report{FilesPushed: 2, ChallengesIssued: 1}, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	if sig.State() != digidoc.ChallengeIssued || sig.ID() != "S0" || string(sig.Challenge()) != "challenge-S0" {
		t.Fatalf("signature = %v %q %q", sig.State(), sig.ID(), sig.Challenge())
	}
	if got := ct.Files()[0].RemoteID(); got != "D-a.txt" {
		t.Fatalf("RemoteID = %q", got)
	}

	fb.reset()
	report, err = client.Update(ctx, ct)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("second Update issued calls: %v", fb.calls)
	}
	if diff := cmp.Diff(digidoc.Report{}, report); diff != "" {
		t.Fatalf("second report mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_SealsSolvedSignature(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	if _, err := ct.AddFile("a.txt", "", []byte("a")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	sig, _ := ct.AddSignature(token(t, "card-1"))
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := sig.SetSolution([]byte("solution")); err != nil {
		t.Fatalf("SetSolution: %v", err)
	}

	fb.reset()
	report, err := client.Update(ctx, ct)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"finalize S0"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if !sig.IsSealed() || sig.Status != backend.StatusOK {
		t.Fatalf("signature = %v %q", sig.State(), sig.Status)
	}
	if diff := cmp.Diff([]string{"S0"}, report.Sealed); diff != "" {
		t.Fatalf("sealed mismatch (-want +got):\n%s", diff)
	}

	// Sealed records are never re-submitted.
	fb.reset()
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("re-finalized sealed signature: %v", fb.calls)
	}
}

func TestUpdate_RejectionRemovesSignature(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{status: map[string]string{"S0": "INVALID"}}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	sig, _ := ct.AddSignature(token(t, "card-1"))
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := sig.SetSolution([]byte("bad")); err != nil {
		t.Fatalf("SetSolution: %v", err)
	}

	fb.reset()
	report, err := client.Update(ctx, ct)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"finalize S0", "remove S0"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if sig.State() != digidoc.Rejected {
		t.Fatalf("state = %v, want rejected", sig.State())
	}
	if len(ct.Signatures()) != 0 {
		t.Fatalf("rejected signature still in container")
	}
	if _, ok := ct.Signature("S0"); ok {
		t.Fatalf("Signature(S0) still found")
	}
	want := []digidoc.Rejection{{SignatureID: "S0", Status: "INVALID"}}
	if diff := cmp.Diff(want, report.Rejected); diff != "" {
		t.Fatalf("rejections mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_CompensationFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	removeErr := backend.NewProtocolError(backend.CodeSessionLocked, "")
	fb := &fakeBackend{status: map[string]string{"S0": "INVALID"}, removeErr: removeErr}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	sig, _ := ct.AddSignature(token(t, "card-1"))
	_, _ = client.Update(ctx, ct)
	_ = sig.SetSolution([]byte("bad"))

	_, err := client.Update(ctx, ct)
	var ce *digidoc.CompensationError
	if !errors.As(err, &ce) || ce.SignatureID != "S0" {
		t.Fatalf("expected CompensationError, got %v", err)
	}
	if !errors.Is(err, backend.ErrSessionLocked) {
		t.Fatalf("cause lost: %v", err)
	}
	if sig.State() != digidoc.Rejected || len(ct.Signatures()) != 0 {
		t.Fatalf("rejected signature not removed locally")
	}
}

func TestUpdate_FinalizeFailureContinues(t *testing.T) {
	ctx := context.Background()
	rpcErr := errors.New("timeout")
	fb := &fakeBackend{finalizeErr: map[string]error{"S0": rpcErr}}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	first, _ := ct.AddSignature(token(t, "card-1"))
	second, _ := ct.AddSignature(token(t, "card-2"))
	_, _ = client.Update(ctx, ct)
	_ = first.SetSolution([]byte("one"))
	_ = second.SetSolution([]byte("two"))

	fb.reset()
	report, err := client.Update(ctx, ct)
	if !errors.Is(err, rpcErr) {
		t.Fatalf("expected finalize error, got %v", err)
	}
	var fe *digidoc.FinalizeError
	if !errors.As(err, &fe) || fe.SignatureID != "S0" {
		t.Fatalf("expected FinalizeError for S0, got %v", err)
	}
	if diff := cmp.Diff([]string{"finalize S0", "finalize S1"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if first.State() != digidoc.Solved || !second.IsSealed() {
		t.Fatalf("states = %v, %v", first.State(), second.State())
	}
	if diff := cmp.Diff([]string{"S1"}, report.Sealed); diff != "" {
		t.Fatalf("sealed mismatch (-want +got):\n%s", diff)
	}

	// The failed record is retried on the next call.
	delete(fb.finalizeErr, "S0")
	fb.reset()
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"finalize S0"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_AbortsOnFileFailure(t *testing.T) {
	ctx := context.Background()
	tooLarge := backend.NewProtocolError(backend.CodeTooLarge, "")
	fb := &fakeBackend{addFileErr: map[string]error{"b.txt": tooLarge}}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	_, _ = ct.AddFile("a.txt", "text/plain", []byte("a"))
	_, _ = ct.AddFile("b.txt", "text/plain", []byte("b"))
	_, _ = ct.AddFile("c.txt", "text/plain", []byte("c"))
	_, _ = ct.AddSignature(token(t, "card-1"))

	fb.reset()
	report, err := client.Update(ctx, ct)
	if !errors.Is(err, backend.ErrRequestTooLarge) {
		t.Fatalf("expected request too large, got %v", err)
	}
	if diff := cmp.Diff([]string{"add a.txt", "add b.txt"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if report.FilesPushed != 1 {
		t.Fatalf("FilesPushed = %d", report.FilesPushed)
	}
	files := ct.Files()
	if !ct.Tracker().Has(files[0]) || ct.Tracker().Has(files[1]) || ct.Tracker().Has(files[2]) {
		t.Fatalf("tracker state wrong after abort")
	}

	delete(fb.addFileErr, "b.txt")
	fb.reset()
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"add b.txt", "add c.txt", "prepare card-1"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_AbortsOnPrepareFailure(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{prepareErr: backend.NewProtocolError(backend.CodeCertificateRevoked, "")}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	sig, _ := ct.AddSignature(token(t, "card-1"))

	if _, err := client.Update(ctx, ct); !errors.Is(err, backend.ErrCertificateInvalid) {
		t.Fatalf("expected certificate invalid, got %v", err)
	}
	if sig.State() != digidoc.Created || ct.Tracker().Has(sig) {
		t.Fatalf("failed prepare mutated record: %v", sig.State())
	}
}

func TestUpdate_NotMerged(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	_, _ = ct.AddFile("a.txt", "text/plain", []byte("a"))

	b, err := json.Marshal(ct)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored := new(digidoc.Container)
	if err := json.Unmarshal(b, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	fb.reset()
	_, err = client.Update(ctx, restored)
	var nm *digidoc.NotMergedError
	if !errors.As(err, &nm) || !errors.Is(err, digidoc.ErrNotMerged) {
		t.Fatalf("expected NotMergedError, got %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("unmerged update issued calls: %v", fb.calls)
	}

	auto := digidoc.NewClient(fb, digidoc.WithAutoMerge())
	report, err := auto.Update(ctx, restored)
	if err != nil {
		t.Fatalf("auto-merge Update: %v", err)
	}
	if report.FilesPushed != 1 || !restored.Merged() {
		t.Fatalf("auto-merge report = %+v", report)
	}
}

func TestSnapshot_KeepsSyncState(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	client := digidoc.NewClient(fb)
	ct, _ := client.Create(ctx)
	_, _ = ct.AddFile("a.txt", "text/plain", []byte("a"))
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, _ = ct.AddFile("b.txt", "text/plain", []byte("b"))
	if _, err := ct.AddSignature(token(t, "card-1")); err != nil {
		t.Fatalf("AddSignature: %v", err)
	}

	archive := storage.NewArchive(storage.NewMemory())
	rec, err := digidoc.SaveSnapshot(archive, ct)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	restored, err := digidoc.LoadSnapshot(archive, rec)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if restored.Session() != ct.Session() || len(restored.Files()) != 2 || len(restored.Signatures()) != 1 {
		t.Fatalf("restored container = %+v", restored)
	}
	client.Merge(restored)

	fb.reset()
	if _, err := client.Update(ctx, restored); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"add b.txt", "prepare card-1"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}

	// Restored signatures still block new files.
	if _, err := restored.AddFile("c.txt", "", nil); !errors.Is(err, digidoc.ErrSignedContainer) {
		t.Fatalf("expected ErrSignedContainer, got %v", err)
	}
}

func TestSnapshot_RejectsBrokenInvariants(t *testing.T) {
	const cert = `"certificate":{"id":"c","der":"YQ=="}`
	cases := map[string]struct {
		in   string
		want error
	}{
		"solved without solution": {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"solved","id":"S0","challenge":"YQ==","synced":true}]}`, digidoc.ErrInvalidTransition},
		"issued without id":       {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"challenge-issued","challenge":"YQ==","synced":true}]}`, digidoc.ErrInvalidTransition},
		"rejected":                {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"rejected","id":"S0","synced":true}]}`, digidoc.ErrInvalidTransition},
		"reused handle":           {`{"version":1,"session":"s","next":2,"files":[{"handle":1,"name":"a"},{"handle":1,"name":"b"}],"signatures":[]}`, digidoc.ErrBrokenSnapshot},
		"version":                 {`{"version":9}`, digidoc.ErrBrokenSnapshot},
		"unknown state":           {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"lost","id":"S0"}]}`, digidoc.ErrBrokenSnapshot},
		"created marked synced":   {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"created",` + cert + `,"synced":true}]}`, digidoc.ErrBrokenSnapshot},
		"issued not synced":       {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"challenge-issued","id":"S0","challenge":"YQ==","synced":false}]}`, digidoc.ErrBrokenSnapshot},
		"solved not synced":       {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"solved","id":"S0","challenge":"YQ==","solution":"Yg==","synced":false}]}`, digidoc.ErrBrokenSnapshot},
		"sealed not synced":       {`{"version":1,"session":"s","next":1,"files":[],"signatures":[{"handle":1,"state":"sealed","id":"S0","synced":false}]}`, digidoc.ErrBrokenSnapshot},
		"remote file not synced":  {`{"version":1,"session":"s","next":1,"files":[{"handle":1,"name":"a","remote":true,"remote_id":"D0","synced":false}],"signatures":[]}`, digidoc.ErrBrokenSnapshot},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := json.Unmarshal([]byte(tc.in), new(digidoc.Container))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Unmarshal error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSnapshot_SyncFlagsDrivePendingWork(t *testing.T) {
	in := `{"version":1,"session":"s","next":3,"files":[` +
		`{"handle":1,"name":"a.txt","mime_type":"text/plain","size":1,"remote":true,"remote_id":"D0","synced":true},` +
		`{"handle":2,"name":"b.txt","mime_type":"text/plain","size":1,"content":"Yg==","synced":false}],` +
		`"signatures":[{"handle":3,"state":"created","certificate":{"id":"c","der":"YQ=="},"synced":false}]}`
	ct := new(digidoc.Container)
	if err := json.Unmarshal([]byte(in), ct); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fb := &fakeBackend{}
	client := digidoc.NewClient(fb)
	client.Merge(ct)
	report, err := client.Update(context.Background(), ct)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([]string{"add b.txt", "prepare c"}, fb.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if report.FilesPushed != 1 || report.ChallengesIssued != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestOpen_HydratesSynchronizedEntities(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{document: &backend.Document{
		Files:      []backend.FileInfo{{ID: "D0", Name: "a.txt", MimeType: "text/plain", Size: 1}},
		Signatures: []backend.SignatureInfo{{ID: "S0", Status: backend.StatusOK}},
	}}
	client := digidoc.NewClient(fb)
	ct, err := client.Open(ctx, []byte("document"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, sigs := ct.Files(), ct.Signatures()
	if len(files) != 1 || !files[0].Remote() || files[0].RemoteID() != "D0" {
		t.Fatalf("files = %+v", files)
	}
	if len(sigs) != 1 || !sigs[0].IsSealed() || sigs[0].Certificate() != nil {
		t.Fatalf("signatures = %+v", sigs)
	}

	fb.reset()
	if _, err := client.Update(ctx, ct); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fb.calls) != 0 {
		t.Fatalf("hydrated entities were pushed: %v", fb.calls)
	}
	if _, err := ct.AddFile("b.txt", "", []byte("b")); !errors.Is(err, digidoc.ErrSignedContainer) {
		t.Fatalf("expected ErrSignedContainer, got %v", err)
	}
}

// brokenCAS fails every write.
type brokenCAS struct{}

func (brokenCAS) Put([]byte) (cid.Cid, error) { return cid.Undef, errors.New("disk full") }
func (brokenCAS) Get(cid.Cid) ([]byte, error) { return nil, storage.ErrNotFound }
func (brokenCAS) Has(cid.Cid) bool            { return false }

func TestArchiveFailureDoesNotFailServiceCalls(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{document: &backend.Document{
		Files: []backend.FileInfo{{ID: "D0", Name: "a.txt", MimeType: "text/plain", Size: 1}},
	}}
	client := digidoc.NewClient(fb, digidoc.WithArchive(storage.NewArchive(brokenCAS{})))

	ct, err := client.Open(ctx, []byte("document"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ct.Session() != "sess-1" || len(ct.Files()) != 1 {
		t.Fatalf("opened container = %s with %d files", ct.Session(), len(ct.Files()))
	}
	doc, err := client.Contents(ctx, ct)
	if err != nil || string(doc) != "document" {
		t.Fatalf("Contents = %q, %v", doc, err)
	}
}

func TestContentsAndClose(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	archive := storage.NewArchive(storage.NewMemory())
	client := digidoc.NewClient(fb, digidoc.WithArchive(archive))
	ct, _ := client.Create(ctx)

	doc, err := client.Contents(ctx, ct)
	if err != nil || string(doc) != "document" {
		t.Fatalf("Contents = %q, %v", doc, err)
	}
	if recs := archive.Records(); len(recs) != 1 || recs[0].Kind != storage.KindDocument {
		t.Fatalf("archive records = %+v", recs)
	}
	if err := client.Close(ctx, ct); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := client.Update(ctx, ct); !errors.Is(err, digidoc.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := ct.AddFile("x", "", nil); !errors.Is(err, digidoc.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAddFileFromPath(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content []byte
		want    string
	}{
		{"notes", []byte("hello"), "text/plain; charset=utf-8"},
		{"scan.png", []byte("\x89PNG\r\n\x1a\n"), "image/png"},
		{"blob", []byte("%PDF-1.7 ..."), "application/pdf"},
		{"empty", nil, "application/octet-stream"},
	}
	ct := digidoc.NewContainerForTest()
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name)
		if err := os.WriteFile(path, tc.content, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		f, err := ct.AddFileFromPath(path)
		if err != nil {
			t.Fatalf("AddFileFromPath(%s): %v", tc.name, err)
		}
		if f.Name() != tc.name || f.MimeType() != tc.want || f.Size() != int64(len(tc.content)) {
			t.Fatalf("%s: got %q %q %d", tc.name, f.Name(), f.MimeType(), f.Size())
		}
	}
	if _, err := ct.AddFileFromPath(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
