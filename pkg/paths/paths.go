package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Environment variable names
const (
	// EnvConfigDir overrides the XDG config directory for wrapup
	EnvConfigDir = "WRAPUP_CONFIG_DIR"

	// EnvCacheDir overrides the XDG cache directory for wrapup
	EnvCacheDir = "WRAPUP_CACHE_DIR"

	// EnvStateDir overrides the XDG state directory for wrapup
	EnvStateDir = "WRAPUP_STATE_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Internal layout. These names are not user-configurable.
const (
	// AppDirName is the directory name for wrapup-specific files
	AppDirName = "wrapup"

	// ConfigFileName is the name of the user configuration file
	ConfigFileName = "wrapup.toml"

	// EnvFileName is the dotenv file read from the config directory
	EnvFileName = ".env"

	// StateFileName is the name of the state record
	StateFileName = "state.toml"

	// LogsDir is the subdirectory for per-run log files
	LogsDir = "logs"

	// SnapshotsDir is the subdirectory for safety snapshots
	SnapshotsDir = "snapshots"

	// ArchivesDir is the cache subdirectory for downloaded archives
	ArchivesDir = "archives"

	// TemplatesDir is the cache subdirectory for extracted templates
	TemplatesDir = "templates"

	// DownloadsDir is the cache subdirectory for guest installers
	DownloadsDir = "downloads"
)

// Paths provides centralized path management for wrapup
type Paths interface {
	ConfigDir() string
	ConfigFile() string
	EnvFile() string
	CacheDir() string
	StateDir() string
	StateFile() string
	LogDir() string
	SnapshotDir() string
	ArchivePath(kind types.ArtifactKind, name string) string
	TemplateDir(name string) string
	DownloadPath(name string) string
}

type paths struct {
	config string
	cache  string
	state  string
}

// New creates a Paths instance from XDG defaults and WRAPUP_*_DIR overrides
func New() (Paths, error) {
	p := &paths{
		config: dirFromEnv(EnvConfigDir, filepath.Join(xdg.ConfigHome, AppDirName)),
		cache:  dirFromEnv(EnvCacheDir, filepath.Join(xdg.CacheHome, AppDirName)),
		state:  dirFromEnv(EnvStateDir, filepath.Join(xdg.StateHome, AppDirName)),
	}
	for _, dir := range []*string{&p.config, &p.cache, &p.state} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to get absolute path for %s", *dir)
		}
		*dir = abs
	}
	return p, nil
}

// NewWithRoot places every wrapup directory under root. Used by tests and
// by callers that want a self-contained installation.
func NewWithRoot(root string) Paths {
	return &paths{
		config: filepath.Join(root, "config"),
		cache:  filepath.Join(root, "cache"),
		state:  filepath.Join(root, "state"),
	}
}

func dirFromEnv(env, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return ExpandHome(v)
	}
	return fallback
}

func (p *paths) ConfigDir() string  { return p.config }
func (p *paths) ConfigFile() string { return filepath.Join(p.config, ConfigFileName) }
func (p *paths) EnvFile() string    { return filepath.Join(p.config, EnvFileName) }
func (p *paths) CacheDir() string   { return p.cache }
func (p *paths) StateDir() string   { return p.state }
func (p *paths) StateFile() string  { return filepath.Join(p.state, StateFileName) }
func (p *paths) LogDir() string     { return filepath.Join(p.state, LogsDir) }
func (p *paths) SnapshotDir() string {
	return filepath.Join(p.state, SnapshotsDir)
}

// ArchivePath is where a downloaded archive of the given kind is cached
func (p *paths) ArchivePath(kind types.ArtifactKind, name string) string {
	return filepath.Join(p.cache, ArchivesDir, string(kind), filepath.Base(name))
}

// TemplateDir is where an extracted template named name lives
func (p *paths) TemplateDir(name string) string {
	return filepath.Join(p.cache, TemplatesDir, trimArchiveExt(filepath.Base(name)))
}

// DownloadPath is where a guest installer is cached
func (p *paths) DownloadPath(name string) string {
	return filepath.Join(p.cache, DownloadsDir, filepath.Base(name))
}

var archiveExts = []string{".tar.gz", ".tar.zst", ".tar.xz", ".tgz", ".txz", ".tar", ".zip"}

func trimArchiveExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to HOME env var
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}

	if len(path) == 1 {
		return homeDir
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}
	// ~user forms are not expanded
	return path
}
