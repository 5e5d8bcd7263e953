package testutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/paths"
)

// Archive names published by every TestEnvironment
const (
	EngineArchive   = "Engine-1.2.0.tar.gz"
	TemplateArchive = "Template-2.0.tar.gz"
	GuestInstaller  = "GuestSetup.exe"

	// TemplatePlist is the config store shipped inside the test template
	TemplatePlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleName</key>
	<string>Template</string>
</dict>
</plist>
`
)

// TestEnvironment is an isolated provisioning host: a temp root holding
// the wrapup directories and a fake home, an artifact server publishing a
// template, an engine and a guest installer, and a scripted command runner
// simulating the package manager and installers.
type TestEnvironment struct {
	T      *testing.T
	Root   string
	Home   string
	Paths  paths.Paths
	Server *ArtifactServer
	Runner *execx.FakeRunner
	Host   *FakeHost

	overrides map[string]interface{}
}

// NewTestEnvironment creates a fully wired environment
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	root := t.TempDir()
	home := filepath.Join(root, "home")
	env := &TestEnvironment{
		T:      t,
		Root:   root,
		Home:   home,
		Paths:  paths.NewWithRoot(filepath.Join(root, "wrapup")),
		Server: NewArtifactServer(t),
		Runner: execx.NewFakeRunner(),
	}

	env.Server.AddFile(EngineArchive, TarGz(t, EngineEntries()...))
	env.Server.AddFile(TemplateArchive, TarGz(t, TemplateEntries()...))
	env.Server.AddFile(GuestInstaller, []byte("MZ guest installer"))
	env.Server.Publish("engine", EngineArchive)
	env.Server.Publish("template", TemplateArchive)

	supportDir := filepath.Join(home, "Library", "Application Support", "Guest")
	env.overrides = map[string]interface{}{
		"network.timeout":        "5s",
		"engine.index_url":       env.Server.IndexURL("engine"),
		"engine.download_base":   env.Server.DownloadBase(),
		"engine.prefix":          "Engine-",
		"engine.suffix":          ".tar.gz",
		"engine.fallback":        "Engine-1.0.0.tar.gz",
		"template.index_url":     env.Server.IndexURL("template"),
		"template.download_base": env.Server.DownloadBase(),
		"template.prefix":        "Template-",
		"template.suffix":        ".tar.gz",
		"template.fallback":      "Template-1.0.tar.gz",
		"wrapper.path":           filepath.Join(home, "Applications", "Guest.app"),
		"wrapper.support_dir":    supportDir,
		"wrapper.links": []interface{}{
			map[string]interface{}{
				"path":   "Contents/SharedSupport/Logs",
				"target": filepath.Join(home, "Library", "Logs", "Guest"),
			},
			map[string]interface{}{
				"path":   "Contents/SharedSupport/prefix/drive_c/users/Shared/Guest",
				"target": supportDir,
			},
		},
		"guest.installer_url":       env.Server.DownloadURL(GuestInstaller),
		"preflight.platforms":       []interface{}{runtime.GOOS},
		"preflight.min_free_mb":     0,
		"preflight.require_network": false,
		"preflight.tools":           []interface{}{},
		"snapshots.keep":            5,
	}

	env.Host = NewFakeHost(env.Runner, env.Config())
	return env
}

// Set overrides a configuration key for subsequent Config calls
func (e *TestEnvironment) Set(key string, value interface{}) *TestEnvironment {
	e.overrides[key] = value
	return e
}

// Overrides returns a copy of the configuration overrides
func (e *TestEnvironment) Overrides() map[string]interface{} {
	overrides := make(map[string]interface{}, len(e.overrides))
	for k, v := range e.overrides {
		overrides[k] = v
	}
	return overrides
}

// Config loads the configuration for this environment
func (e *TestEnvironment) Config() *config.Config {
	e.T.Helper()
	cfg, err := config.LoadConfiguration(e.Paths, config.Options{Overrides: e.Overrides()})
	if err != nil {
		e.T.Fatalf("failed to load test configuration: %v", err)
	}
	return cfg
}

// WrapperPath is where the wrapper gets assembled
func (e *TestEnvironment) WrapperPath() string {
	return e.overrides["wrapper.path"].(string)
}

// EngineEntries is the content of the published engine archive
func EngineEntries() []Entry {
	return []Entry{
		Dir("wine/"),
		Dir("wine/bin/"),
		Exec("wine/bin/wine", "#!/bin/sh\nexit 0\n"),
		Symlink("wine/bin/wine64", "wine"),
		File("wine/lib/libwine.dylib", "lib"),
	}
}

// TemplateEntries is the content of the published template archive
func TemplateEntries() []Entry {
	return []Entry{
		Dir("Template/"),
		File("Template/Contents/Info.plist", TemplatePlist),
		Exec("Template/Contents/MacOS/launcher", "#!/bin/sh\n"),
		Dir("Template/Contents/SharedSupport/prefix/drive_c/"),
	}
}
