package memory

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/xades"
)

// MimeTypeASiCE is stored uncompressed as the first entry of every
// exported container.
const MimeTypeASiCE = "application/vnd.etsi.asic-e+zip"

const (
	mimetypeEntry = "mimetype"
	manifestPath  = "META-INF/manifest.xml"
	metaDir       = "META-INF/"
)

// maxEntryBytes bounds a single decompressed entry.
const maxEntryBytes = 64 << 20

var ErrNotContainer = errors.New("memory: not an ASiC-E container")

type manifest struct {
	XMLName xml.Name        `xml:"urn:oasis:names:tc:opendocument:xmlns:manifest:1.0 manifest"`
	Entries []manifestEntry `xml:"file-entry"`
}

type manifestEntry struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

func writeDocument(files []*file, sigs []*xades.Signature) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: mimetypeEntry, Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, MimeTypeASiCE); err != nil {
		return nil, err
	}

	m := manifest{Entries: []manifestEntry{{FullPath: "/", MediaType: MimeTypeASiCE}}}
	for _, f := range files {
		m.Entries = append(m.Entries, manifestEntry{FullPath: f.info.Name, MediaType: f.info.MimeType})
		w, err := zw.Create(f.info.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.content); err != nil {
			return nil, err
		}
	}
	body, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if w, err = zw.Create(manifestPath); err != nil {
		return nil, err
	}
	if _, err := w.Write(append([]byte(xml.Header), body...)); err != nil {
		return nil, err
	}

	for i, sig := range sigs {
		body, err := sig.Marshal()
		if err != nil {
			return nil, err
		}
		w, err := zw.Create(fmt.Sprintf("%ssignatures%d.xml", metaDir, i))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readDocument returns data files in archive order and signatures ordered
// by entry name.
func readDocument(doc []byte) ([]*file, []*xades.Signature, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	if len(zr.File) == 0 || zr.File[0].Name != mimetypeEntry {
		return nil, nil, fmt.Errorf("%w: first entry is not %q", ErrNotContainer, mimetypeEntry)
	}
	if mt, err := readEntry(zr.File[0]); err != nil {
		return nil, nil, err
	} else if strings.TrimSpace(string(mt)) != MimeTypeASiCE {
		return nil, nil, fmt.Errorf("%w: mimetype %q", ErrNotContainer, mt)
	}

	types := map[string]string{}
	var files []*file
	sigEntries := map[string]*xades.Signature{}
	for _, zf := range zr.File[1:] {
		if strings.HasSuffix(zf.Name, "/") {
			continue
		}
		body, err := readEntry(zf)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case zf.Name == manifestPath:
			var m manifest
			if err := xml.Unmarshal(body, &m); err != nil {
				return nil, nil, fmt.Errorf("memory: manifest: %w", err)
			}
			for _, e := range m.Entries {
				types[e.FullPath] = e.MediaType
			}
		case strings.HasPrefix(zf.Name, metaDir):
			if !strings.Contains(path.Base(zf.Name), "signatures") {
				continue
			}
			sig, err := xades.Parse(body)
			if err != nil {
				return nil, nil, fmt.Errorf("memory: %s: %w", zf.Name, err)
			}
			sigEntries[zf.Name] = sig
		default:
			files = append(files, &file{
				info:    backend.FileInfo{Name: zf.Name, Size: int64(len(body))},
				content: body,
			})
		}
	}
	for _, f := range files {
		f.info.MimeType = types[f.info.Name]
		if f.info.MimeType == "" {
			f.info.MimeType = mime.TypeByExtension(path.Ext(f.info.Name))
		}
		if f.info.MimeType == "" {
			f.info.MimeType = "application/octet-stream"
		}
	}

	names := make([]string, 0, len(sigEntries))
	for name := range sigEntries {
		names = append(names, name)
	}
	sort.Strings(names)
	sigs := make([]*xades.Signature, 0, len(names))
	for _, name := range names {
		sigs = append(sigs, sigEntries[name])
	}
	return files, sigs, nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("memory: %s: %w", zf.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("memory: %s: %w", zf.Name, err)
	}
	if len(body) > maxEntryBytes {
		return nil, fmt.Errorf("memory: %s: entry too large", zf.Name)
	}
	return body, nil
}
