package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/cleanup"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/internal/hashutil"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/paths"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// partSuffix marks an in-flight download
const partSuffix = ".part"

// Store downloads archives into the shared cache and unpacks them
type Store struct {
	client   *http.Client
	registry *cleanup.Registry
	paths    paths.Paths
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a Store. Temporary files are registered with registry.
func New(client *http.Client, registry *cleanup.Registry, p paths.Paths) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{
		client:   client,
		registry: registry,
		paths:    p,
		now:      time.Now,
		logger:   logging.GetLogger("artifacts"),
	}
}

type fetchOptions struct {
	checksum string
}

// FetchOption adjusts a single Fetch
type FetchOption func(*fetchOptions)

// WithChecksum verifies the download against a hex sha256
func WithChecksum(sum string) FetchOption {
	return func(o *fetchOptions) {
		o.checksum = strings.ToLower(strings.TrimSpace(sum))
	}
}

// Fetch downloads url to dest. A non-empty dest is a cache hit and causes
// no network access, unless a checksum is given and the cached file does
// not match it; an empty or mismatching file is downloaded again. The
// body streams into dest.part, which is renamed over dest only once it is
// complete, non-empty and verified.
func (s *Store) Fetch(ctx context.Context, url, dest string, opts ...FetchOption) (types.CachedArchive, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		hit := types.CachedArchive{Path: dest, Size: info.Size(), Hit: true, FetchedAt: info.ModTime()}
		switch {
		case info.Size() == 0:
			s.logger.Debug().Str("path", dest).Msg("Discarding empty cached archive")
		case o.checksum == "":
			s.logger.Debug().Str("path", dest).Int64("size", info.Size()).Msg("Archive cache hit")
			return hit, nil
		default:
			ok, err := hashutil.Matches(dest, o.checksum)
			if err != nil {
				return types.CachedArchive{}, errors.Wrapf(err, errors.ErrFileAccess, "failed to read cached archive %s", dest)
			}
			if ok {
				s.logger.Debug().Str("path", dest).Msg("Archive cache hit, checksum verified")
				hit.Checksum = o.checksum
				return hit, nil
			}
			s.logger.Warn().Str("path", dest).Msg("Cached archive does not match its checksum, downloading again")
		}
		if err := os.Remove(dest); err != nil {
			return types.CachedArchive{}, errors.Wrapf(err, errors.ErrDownload, "failed to remove cached archive %s", dest)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return types.CachedArchive{}, errors.Wrapf(err, errors.ErrDirCreate, "failed to create cache dir for %s", dest)
	}

	part := dest + partSuffix
	s.registry.Track(part)
	defer s.registry.Untrack(part)

	size, sum, err := s.download(ctx, url, part)
	if err != nil {
		_ = os.Remove(part)
		return types.CachedArchive{}, err
	}
	if size == 0 {
		_ = os.Remove(part)
		return types.CachedArchive{}, errors.Newf(errors.ErrDownload, "download of %s is empty", url).
			WithDetail("url", url)
	}
	if o.checksum != "" && o.checksum != sum {
		_ = os.Remove(part)
		return types.CachedArchive{}, errors.Newf(errors.ErrDownload, "checksum mismatch for %s: got %s, want %s", url, sum, o.checksum).
			WithDetail("url", url)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return types.CachedArchive{}, errors.Wrapf(err, errors.ErrDownload, "failed to move download into %s", dest)
	}

	s.logger.Info().Str("url", url).Str("path", dest).Int64("size", size).Msg("Archive downloaded")
	return types.CachedArchive{Path: dest, Size: size, Checksum: sum, FetchedAt: s.now()}, nil
}

func (s *Store) download(ctx context.Context, url, part string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", errors.Wrapf(err, errors.ErrDownload, "invalid download url %s", url)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", errors.Wrapf(err, errors.ErrDownload, "failed to download %s", url).WithDetail("url", url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, "", errors.Newf(errors.ErrDownload, "download of %s answered %d", url, resp.StatusCode).
			WithDetail("url", url).
			WithDetail("status", resp.StatusCode)
	}

	out, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, "", errors.Wrapf(err, errors.ErrFileWrite, "failed to create %s", part)
	}
	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(out, h), resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return 0, "", errors.Wrapf(copyErr, errors.ErrDownload, "transfer of %s interrupted", url).WithDetail("url", url)
	}
	if closeErr != nil {
		return 0, "", errors.Wrapf(closeErr, errors.ErrFileWrite, "failed to write %s", part)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return 0, "", errors.Newf(errors.ErrDownload, "transfer of %s incomplete: %d of %d bytes", url, n, resp.ContentLength)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Ensure makes dest hold the extracted contents of id. When dest/marker
// already exists nothing is fetched or extracted. Extraction goes through
// a staging directory so dest never holds a partial tree.
func (s *Store) Ensure(ctx context.Context, id types.ArtifactIdentifier, dest string, strip int, marker string) (types.CachedArchive, error) {
	if marker != "" {
		if _, err := os.Lstat(filepath.Join(dest, marker)); err == nil {
			s.logger.Debug().Str("artifact", id.Name).Str("dest", dest).Msg("Already extracted, skipping")
			return types.CachedArchive{ID: id, Hit: true}, nil
		}
	}

	archivePath := s.paths.ArchivePath(id.Kind, id.Name)
	archive, err := s.Fetch(ctx, id.URL, archivePath, WithChecksum(id.SHA256))
	if err != nil {
		return types.CachedArchive{}, err
	}
	archive.ID = id

	staging := fmt.Sprintf("%s.partial-%d", dest, s.now().UnixNano())
	s.registry.Track(staging)
	defer s.registry.Untrack(staging)

	if err := Extract(ctx, archive.Path, staging, strip, marker); err != nil {
		_ = os.RemoveAll(staging)
		if errors.IsErrorCode(err, errors.ErrExtract) && archive.Hit {
			// A cached archive that cannot be unpacked is not a valid cache entry
			s.logger.Warn().Str("path", archive.Path).Msg("Removing unusable cached archive")
			_ = os.Remove(archive.Path)
		}
		return types.CachedArchive{}, err
	}

	if err := os.RemoveAll(dest); err != nil {
		_ = os.RemoveAll(staging)
		return types.CachedArchive{}, errors.Wrapf(err, errors.ErrExtract, "failed to clear %s", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		_ = os.RemoveAll(staging)
		return types.CachedArchive{}, errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(dest))
	}
	if err := os.Rename(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return types.CachedArchive{}, errors.Wrapf(err, errors.ErrExtract, "failed to move extraction into %s", dest)
	}

	s.logger.Info().Str("artifact", id.Name).Str("dest", dest).Msg("Artifact extracted")
	return archive, nil
}
