package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Config is the complete wrapup configuration. It is built once by
// LoadConfiguration and handed to every component; nothing mutates it
// afterwards.
type Config struct {
	App          App               `koanf:"app"`
	Network      Network           `koanf:"network"`
	Engine       Artifact          `koanf:"engine"`
	Template     Artifact          `koanf:"template"`
	Checksums    map[string]string `koanf:"checksums"`
	Wrapper      Wrapper           `koanf:"wrapper"`
	Base         Base              `koanf:"base"`
	Dependencies Dependencies      `koanf:"dependencies"`
	Guest        Guest             `koanf:"guest"`
	Audio        Audio             `koanf:"audio"`
	Preflight    Preflight         `koanf:"preflight"`
	Snapshots    Snapshots         `koanf:"snapshots"`
}

// App names the guest application being provisioned
type App struct {
	Name string `koanf:"name"`
}

// Network holds settings shared by every HTTP call
type Network struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
	// Token is sent as a bearer token to the release index
	Token string `koanf:"token"`
}

// Artifact describes where the versions of one artifact kind are listed
// and how its archive is laid out.
type Artifact struct {
	IndexURL     string `koanf:"index_url"`
	DownloadBase string `koanf:"download_base"`
	Prefix       string `koanf:"prefix"`
	Suffix       string `koanf:"suffix"`
	Fallback     string `koanf:"fallback"`
	Strip        int    `koanf:"strip"`
	Marker       string `koanf:"marker"`
}

// Link is a symlink created inside the wrapper. Path is relative to the
// wrapper root.
type Link struct {
	Path   string `koanf:"path"`
	Target string `koanf:"target"`
}

// Wrapper describes the composed wrapper and its internal layout. All
// relative paths are relative to Path.
type Wrapper struct {
	Path           string                `koanf:"path"`
	SupportDir     string                `koanf:"support_dir"`
	ConfigStore    string                `koanf:"config_store"`
	EngineDir      string                `koanf:"engine_dir"`
	EngineMarker   string                `koanf:"engine_marker"`
	PrefixDir      string                `koanf:"prefix_dir"`
	QuarantineAttr string                `koanf:"quarantine_attr"`
	Links          []Link                `koanf:"links"`
	Settings       []types.ConfigSetting `koanf:"settings"`
}

// Package is a package manager package. Cask selects the cask namespace
// and Tap, when set, is tapped before installing.
type Package struct {
	Name string `koanf:"name"`
	Cask bool   `koanf:"cask"`
	Tap  string `koanf:"tap"`
}

// Base lists what the package manager provides
type Base struct {
	Manager        string    `koanf:"manager"`
	Packages       []Package `koanf:"packages"`
	WrapperManager Package   `koanf:"wrapper_manager"`
}

// Dependencies configures the in-wrapper dependency installer
type Dependencies struct {
	Installer string   `koanf:"installer"`
	Args      []string `koanf:"args"`
	Packages  []string `koanf:"packages"`
	// LogFile is relative to the wrapper prefix directory
	LogFile string `koanf:"log_file"`
}

// Guest configures the guest application installer
type Guest struct {
	InstallerURL  string   `koanf:"installer_url"`
	InstallerName string   `koanf:"installer_name"`
	Command       []string `koanf:"command"`
	// Marker is relative to the wrapper root
	Marker string `koanf:"marker"`
}

// Audio lists the settings of the audio environment stage
type Audio struct {
	Settings []types.ConfigSetting `koanf:"settings"`
}

// Preflight holds the host requirements checked before any mutation
type Preflight struct {
	Platforms       []string      `koanf:"platforms"`
	MinFreeMB       int64         `koanf:"min_free_mb"`
	RequireNetwork  bool          `koanf:"require_network"`
	NetworkProbeURL string        `koanf:"network_probe_url"`
	Tools           []string      `koanf:"tools"`
	TTL             time.Duration `koanf:"ttl"`
}

// Snapshots controls safety snapshot retention. Keep 0 keeps everything.
type Snapshots struct {
	Keep int `koanf:"keep"`
}

// ArtifactFor returns the artifact section for kind
func (c *Config) ArtifactFor(kind types.ArtifactKind) (Artifact, bool) {
	switch kind {
	case types.ArtifactEngine:
		return c.Engine, true
	case types.ArtifactTemplate:
		return c.Template, true
	}
	return Artifact{}, false
}

// Checksum returns the pinned sha256 for an archive name, if any
func (c *Config) Checksum(name string) string {
	if c.Checksums == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.Checksums[name]))
}

// Platform is the current host in the goos/goarch form used by
// preflight.platforms
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Validate checks the invariants the components rely on. Individual
// settings are not checked here; the converger reports them per key.
func (c *Config) Validate() error {
	var problems []string
	require := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	for _, kind := range []types.ArtifactKind{types.ArtifactEngine, types.ArtifactTemplate} {
		a, _ := c.ArtifactFor(kind)
		require(a.Fallback != "", "%s.fallback must be set", kind)
		require(a.DownloadBase != "", "%s.download_base must be set", kind)
		require(a.Strip >= 0, "%s.strip must not be negative", kind)
		require(a.Marker != "", "%s.marker must be set", kind)
	}

	require(c.Wrapper.Path != "", "wrapper.path must be set")
	require(c.Wrapper.ConfigStore != "", "wrapper.config_store must be set")
	require(c.Wrapper.EngineDir != "", "wrapper.engine_dir must be set")
	require(c.Wrapper.EngineMarker != "", "wrapper.engine_marker must be set")
	require(c.Network.Timeout > 0, "network.timeout must be positive")
	require(c.Snapshots.Keep >= 0, "snapshots.keep must not be negative")
	require(c.Preflight.MinFreeMB >= 0, "preflight.min_free_mb must not be negative")

	for i, l := range c.Wrapper.Links {
		require(l.Path != "" && l.Target != "", "wrapper.links[%d] needs path and target", i)
	}
	for _, p := range c.Base.Packages {
		require(p.Name != "", "base.packages entries need a name")
	}

	if len(problems) > 0 {
		return errors.Newf(errors.ErrConfigValid, "invalid configuration: %s", strings.Join(problems, "; ")).
			WithDetail("problems", problems)
	}
	return nil
}
