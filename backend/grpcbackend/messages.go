package grpcbackend

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/encoding/b64"
)

// Field names of the structpb messages.
const (
	fSession       = "session"
	fDocument      = "document"
	fFiles         = "files"
	fSignatures    = "signatures"
	fID            = "id"
	fName          = "name"
	fMimeType      = "mime_type"
	fSize          = "size"
	fContent       = "content"
	fCertificate   = "certificate"
	fCertificateID = "certificate_id"
	fSignatureID   = "signature_id"
	fChallenge     = "challenge"
	fSolution      = "solution"
	fStatus        = "status"
	fSignerName    = "signer_name"
	fError         = "error"
	fCode          = "code"
	fMessage       = "message"
)

// fields reads a structpb.Struct; the first decoding problem is kept in err.
type fields struct {
	s   *structpb.Struct
	err error
}

func read(s *structpb.Struct) *fields { return &fields{s: s} }

func (f *fields) value(key string) *structpb.Value {
	if f.s == nil {
		return nil
	}
	return f.s.GetFields()[key]
}

func (f *fields) str(key string) string {
	return f.value(key).GetStringValue()
}

func (f *fields) int(key string) int64 {
	return int64(f.value(key).GetNumberValue())
}

func (f *fields) bytes(key string) []byte {
	v := f.value(key)
	if v == nil {
		return nil
	}
	b, err := b64.DecodeString(v.GetStringValue())
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("field %q: %w", key, err)
	}
	return b
}

func (f *fields) list(key string) []*fields {
	var out []*fields
	for _, v := range f.value(key).GetListValue().GetValues() {
		out = append(out, read(v.GetStructValue()))
	}
	return out
}

func (f *fields) has(key string) bool { return f.value(key) != nil }

func encodeBytes(b []byte) string { return b64.EncodeToString(b) }

func fileInfoFields(fi backend.FileInfo) map[string]any {
	return map[string]any{
		fID:       fi.ID,
		fName:     fi.Name,
		fMimeType: fi.MimeType,
		fSize:     fi.Size,
	}
}

func fileInfoFrom(f *fields) backend.FileInfo {
	return backend.FileInfo{
		ID:       f.str(fID),
		Name:     f.str(fName),
		MimeType: f.str(fMimeType),
		Size:     f.int(fSize),
	}
}

func signatureInfoFields(si backend.SignatureInfo) map[string]any {
	m := map[string]any{
		fID:         si.ID,
		fStatus:     si.Status,
		fSignerName: si.SignerName,
		fError:      si.Error,
	}
	if len(si.Certificate) > 0 {
		m[fCertificate] = encodeBytes(si.Certificate)
	}
	return m
}

func signatureInfoFrom(f *fields) backend.SignatureInfo {
	return backend.SignatureInfo{
		ID:          f.str(fID),
		Status:      f.str(fStatus),
		Certificate: f.bytes(fCertificate),
		SignerName:  f.str(fSignerName),
		Error:       f.str(fError),
	}
}

func signatureList(infos []backend.SignatureInfo) []any {
	out := make([]any, 0, len(infos))
	for _, si := range infos {
		out = append(out, signatureInfoFields(si))
	}
	return out
}

func signaturesFrom(f *fields) []backend.SignatureInfo {
	var out []backend.SignatureInfo
	for _, item := range f.list(fSignatures) {
		out = append(out, signatureInfoFrom(item))
		if item.err != nil && f.err == nil {
			f.err = item.err
		}
	}
	return out
}

func sessionFields(s backend.Session) map[string]any {
	m := map[string]any{fSession: string(s.ID)}
	if s.Document != nil {
		files := make([]any, 0, len(s.Document.Files))
		for _, fi := range s.Document.Files {
			files = append(files, fileInfoFields(fi))
		}
		m[fDocument] = map[string]any{
			fFiles:      files,
			fSignatures: signatureList(s.Document.Signatures),
		}
	}
	return m
}

func sessionFrom(f *fields) backend.Session {
	s := backend.Session{ID: backend.SessionID(f.str(fSession))}
	if !f.has(fDocument) {
		return s
	}
	doc := read(f.value(fDocument).GetStructValue())
	s.Document = &backend.Document{}
	for _, item := range doc.list(fFiles) {
		s.Document.Files = append(s.Document.Files, fileInfoFrom(item))
	}
	s.Document.Signatures = signaturesFrom(doc)
	if doc.err != nil && f.err == nil {
		f.err = doc.err
	}
	return s
}
