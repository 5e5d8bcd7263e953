package resolver

import (
	"strings"

	"golang.org/x/mod/semver"
)

type candidate struct {
	asset   Asset
	version string
}

// versionOf extracts the version between prefix and suffix in name
func versionOf(name, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}

// selectAsset returns the matching asset with the greatest version. Draft
// releases are ignored.
func selectAsset(releases []Release, prefix, suffix string) (candidate, bool) {
	var best candidate
	found := false
	for _, rel := range releases {
		if rel.Draft {
			continue
		}
		for _, a := range rel.Assets {
			v, ok := versionOf(a.Name, prefix, suffix)
			if !ok {
				continue
			}
			c := candidate{asset: a, version: v}
			if !found || compareVersions(c.version, best.version) > 0 {
				best = c
				found = true
			}
		}
	}
	return best, found
}

// canonical maps a release version onto semver syntax. A leading "v" is
// optional and "_" introduces a build suffix, as in 24.0.7_7.
func canonical(v string) string {
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	v = strings.Replace(v, "_", "+", 1)
	return "v" + v
}

// compareVersions orders versions by semantic version. Versions that are
// not valid semver sort below valid ones and compare lexically among
// themselves. Ties under semver, such as differing build suffixes, are
// broken by comparing the build suffixes numerically when possible.
func compareVersions(a, b string) int {
	ca, cb := canonical(a), canonical(b)
	va, vb := semver.IsValid(ca), semver.IsValid(cb)
	switch {
	case va && !vb:
		return 1
	case !va && vb:
		return -1
	case !va && !vb:
		return strings.Compare(a, b)
	}
	if c := semver.Compare(ca, cb); c != 0 {
		return c
	}
	return compareBuild(semver.Build(ca), semver.Build(cb))
}

func compareBuild(a, b string) int {
	a, b = strings.TrimPrefix(a, "+"), strings.TrimPrefix(b, "+")
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
