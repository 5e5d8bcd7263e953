package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Entry is one member of a test archive. Names ending in "/" are
// directories; a non-empty Link makes a symlink.
type Entry struct {
	Name string
	Body string
	Mode fs.FileMode
	Link string
}

// File is a regular file entry
func File(name, body string) Entry {
	return Entry{Name: name, Body: body}
}

// Exec is an executable file entry
func Exec(name, body string) Entry {
	return Entry{Name: name, Body: body, Mode: 0755}
}

// Dir is a directory entry
func Dir(name string) Entry {
	return Entry{Name: strings.TrimSuffix(name, "/") + "/"}
}

// Symlink is a symlink entry
func Symlink(name, target string) Entry {
	return Entry{Name: name, Link: target}
}

// TarGz builds a gzip-compressed tarball
func TarGz(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, entries)
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// TarZst builds a zstd-compressed tarball
func TarZst(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	writeTar(t, enc, entries)
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

// TarXz builds an xz-compressed tarball
func TarXz(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	writeTar(t, xw, entries)
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// Tar builds an uncompressed tarball
func Tar(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	writeTar(t, &buf, entries)
	return buf.Bytes()
}

func writeTar(t *testing.T, w io.Writer, entries []Entry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: int64(modeOr(e.Mode, 0644))}
		switch {
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
			hdr.Mode = 0777
		case strings.HasSuffix(e.Name, "/"):
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = int64(modeOr(e.Mode, 0755))
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("tar body %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
}

// Zip builds a zip archive
func Zip(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		body := e.Body
		switch {
		case e.Link != "":
			hdr.SetMode(fs.ModeSymlink | 0777)
			body = e.Link
		case strings.HasSuffix(e.Name, "/"):
			hdr.SetMode(fs.ModeDir | modeOr(e.Mode, 0755))
		default:
			hdr.SetMode(modeOr(e.Mode, 0644))
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip header %s: %v", e.Name, err)
		}
		if !strings.HasSuffix(e.Name, "/") {
			if _, err := w.Write([]byte(body)); err != nil {
				t.Fatalf("zip body %s: %v", e.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Archive builds an archive whose format matches name's extension
func Archive(t *testing.T, name string, entries ...Entry) []byte {
	t.Helper()
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz(t, entries...)
	case strings.HasSuffix(lower, ".tar.zst"):
		return TarZst(t, entries...)
	case strings.HasSuffix(lower, ".tar.xz"):
		return TarXz(t, entries...)
	case strings.HasSuffix(lower, ".tar"):
		return Tar(t, entries...)
	case strings.HasSuffix(lower, ".zip"):
		return Zip(t, entries...)
	}
	t.Fatalf("no archive builder for %s", name)
	return nil
}

// WriteArchive writes an archive named name into dir and returns its path
func WriteArchive(t *testing.T, dir, name string, entries ...Entry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, Archive(t, name, entries...), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func modeOr(m, def fs.FileMode) fs.FileMode {
	if m == 0 {
		return def
	}
	return m
}
