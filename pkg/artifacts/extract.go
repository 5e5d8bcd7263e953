package artifacts

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/arthur-debert/wrapup/pkg/errors"
)

// Format is an archive container format
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
	FormatTarXz  Format = "tar.xz"
	FormatTar    Format = "tar"
	FormatZip    Format = "zip"
)

var formatSuffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.zst", FormatTarZst},
	{".tzst", FormatTarZst},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// DetectFormat infers the format from the archive name
func DetectFormat(name string) (Format, bool) {
	lower := strings.ToLower(name)
	for _, f := range formatSuffixes {
		if strings.HasSuffix(lower, f.suffix) {
			return f.format, true
		}
	}
	return "", false
}

// Extract unpacks archive into dest, dropping the first strip path
// components of every entry. Entries that would land outside dest, even
// through symlinks created by earlier entries, and symlinks pointing outside
// it, are rejected. When marker is set it must
// exist under dest afterwards.
func Extract(ctx context.Context, archive, dest string, strip int, marker string) error {
	format, ok := DetectFormat(archive)
	if !ok {
		return errors.Newf(errors.ErrExtract, "unsupported archive format: %s", filepath.Base(archive))
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dest)
	}

	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to resolve %s", dest)
	}
	if format == FormatZip {
		err = extractZip(ctx, archive, dest, root, strip)
	} else {
		err = extractTar(ctx, archive, format, dest, root, strip)
	}
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrCancelled) {
			return err
		}
		return errors.Wrapf(err, errors.ErrExtract, "failed to extract %s", filepath.Base(archive)).
			WithDetail("archive", archive)
	}

	if marker != "" {
		if _, err := os.Lstat(filepath.Join(dest, marker)); err != nil {
			return errors.Newf(errors.ErrExtract, "extraction marker %s missing after extracting %s", marker, filepath.Base(archive)).
				WithDetail("archive", archive).
				WithDetail("marker", marker)
		}
	}
	return nil
}

func extractTar(ctx context.Context, archive string, format Format, dest, root string, strip int) error {
	file, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	var r io.Reader = file
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer func() {
			_ = gz.Close()
		}()
		r = gz
	case FormatTarZst:
		dec, err := zstd.NewReader(file)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	case FormatTarXz:
		xr, err := xz.NewReader(file)
		if err != nil {
			return err
		}
		r = xr
	}

	tr := tar.NewReader(r)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCancelled, "extraction interrupted")
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		entries++

		name, ok := stripComponents(hdr.Name, strip)
		if !ok {
			continue
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return err
		}
		if err := confine(root, target); err != nil {
			return err
		}

		mode := hdr.FileInfo().Mode().Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := makeSymlink(root, target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			linkName, ok := stripComponents(hdr.Linkname, strip)
			if !ok {
				return fmt.Errorf("hard link %s points into a stripped prefix", hdr.Name)
			}
			src, err := safeJoin(dest, linkName)
			if err != nil {
				return err
			}
			if err := confine(root, src); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(src, target); err != nil {
				return err
			}
		default:
			// devices, fifos and pax metadata have no place in the payload
		}
	}
	if entries == 0 {
		return fmt.Errorf("archive is empty")
	}
	return nil
}

func extractZip(ctx context.Context, archive, dest, root string, strip int) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer func() {
		_ = zr.Close()
	}()
	if len(zr.File) == 0 {
		return fmt.Errorf("archive is empty")
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCancelled, "extraction interrupted")
		}
		name, ok := stripComponents(f.Name, strip)
		if !ok {
			continue
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return err
		}
		if err := confine(root, target); err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, mode.Perm()|0700); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			link, err := readZipEntry(f)
			if err != nil {
				return err
			}
			if err := makeSymlink(root, target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = writeFile(target, rc, mode.Perm())
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	return io.ReadAll(rc)
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	// Replace symlinks instead of writing through them
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, perm)
}

// makeSymlink creates target -> link after checking that the link resolves
// inside root, the real path of the destination. The link is resolved from
// the real parent of target, so links chained through earlier links are
// judged by where they actually point.
func makeSymlink(root, target, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("absolute symlink target: %s -> %s", target, link)
	}
	parent, err := realPath(filepath.Dir(target))
	if err != nil {
		return err
	}
	resolved := filepath.Join(parent, link)
	if !within(root, resolved) {
		return fmt.Errorf("symlink escapes destination: %s -> %s", target, link)
	}
	if final, err := filepath.EvalSymlinks(resolved); err == nil && !within(root, final) {
		return fmt.Errorf("symlink escapes destination: %s -> %s", target, link)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

// confine fails when the real parent directory of target lies outside root
func confine(root, target string) error {
	parent, err := realPath(filepath.Dir(target))
	if err != nil {
		return err
	}
	if !within(root, parent) {
		return fmt.Errorf("archive path escapes destination through a symlink: %s", target)
	}
	return nil
}

// realPath resolves symlinks in the longest existing prefix of p and
// appends the part that does not exist yet
func realPath(p string) (string, error) {
	tail := ""
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, tail), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		tail = filepath.Join(filepath.Base(cur), tail)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// stripComponents removes the first n slash-separated components of name.
// It reports false when nothing remains. Absolute names and ".." segments
// are left in place for safeJoin to reject.
func stripComponents(name string, n int) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return name, true
	}
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	if n >= len(parts) {
		return "", false
	}
	return strings.Join(parts[n:], "/"), true
}

func safeJoin(base, name string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(filepath.FromSlash(name)))
	if clean == "." || clean == "" {
		return "", fmt.Errorf("invalid archive path: %s", name)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute archive path: %s", name)
	}
	target := filepath.Join(base, clean)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", fmt.Errorf("invalid archive path: %s", name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive path escapes destination: %s", name)
	}
	return target, nil
}

// IsPartial reports whether name is an in-flight download or staging dir
func IsPartial(name string) bool {
	return strings.HasSuffix(name, partSuffix) || strings.Contains(name, ".partial-")
}
