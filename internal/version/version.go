// Package version holds build information injected at link time
package version

import "fmt"

// Build information set by ldflags:
//
//	-X github.com/arthur-debert/wrapup/internal/version.Version={{.Version}}
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build information on one line
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
