// Package preflight validates the host before any mutation: platform,
// free disk space, required tools and network reachability.
package preflight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/logging"
)

const bytesPerMB = 1 << 20

// CheckResult is the outcome of one check
type CheckResult struct {
	Name    string `json:"name" yaml:"name"`
	OK      bool   `json:"ok" yaml:"ok"`
	Message string `json:"message" yaml:"message"`
}

// Report collects every check of one preflight pass
type Report struct {
	Checks []CheckResult `json:"checks" yaml:"checks"`
}

// Passed reports whether every check succeeded
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Failures returns the failed checks
func (r Report) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Checker runs the preflight checks
type Checker struct {
	cfg    config.Preflight
	runner execx.Runner
	client *http.Client
	// diskPaths are checked for free space; the nearest existing ancestor
	// of each is measured
	diskPaths []string

	platform  string
	freeBytes func(path string) (uint64, error)
	logger    zerolog.Logger
}

// NewChecker creates a checker for cfg. diskPaths are the locations that
// will receive data.
func NewChecker(cfg config.Preflight, runner execx.Runner, client *http.Client, diskPaths ...string) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Checker{
		cfg:       cfg,
		runner:    runner,
		client:    client,
		diskPaths: diskPaths,
		platform:  config.Platform(),
		freeBytes: FreeBytes,
		logger:    logging.GetLogger("preflight"),
	}
}

// Run executes every check. The returned error is a PREFLIGHT error
// naming each failure; the report is complete either way.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	var report Report
	report.Checks = append(report.Checks, c.checkPlatform())
	report.Checks = append(report.Checks, c.checkDisk()...)
	report.Checks = append(report.Checks, c.checkTools()...)
	if c.cfg.RequireNetwork {
		report.Checks = append(report.Checks, c.checkNetwork(ctx))
	}

	for _, check := range report.Checks {
		ev := c.logger.Debug()
		if !check.OK {
			ev = c.logger.Warn()
		}
		ev.Str("check", check.Name).Bool("ok", check.OK).Msg(check.Message)
	}

	if failures := report.Failures(); len(failures) > 0 {
		msgs := make([]string, len(failures))
		for i, f := range failures {
			msgs[i] = f.Message
		}
		return report, errors.Newf(errors.ErrPreflight, "preflight failed: %s", strings.Join(msgs, "; ")).
			WithDetail("failures", msgs)
	}
	return report, nil
}

// Fingerprint identifies this host and the requirements it was checked
// against. A cached pass is only valid for the same fingerprint.
func (c *Checker) Fingerprint() string {
	host, _ := os.Hostname()
	tools := append([]string(nil), c.cfg.Tools...)
	sort.Strings(tools)
	paths := append([]string(nil), c.diskPaths...)
	sort.Strings(paths)

	h := sha256.New()
	fmt.Fprintf(h, "host=%s\nplatform=%s\nmin_free_mb=%d\ntools=%s\nnetwork=%t\nprobe=%s\npaths=%s\n",
		host, c.platform, c.cfg.MinFreeMB, strings.Join(tools, ","),
		c.cfg.RequireNetwork, c.cfg.NetworkProbeURL, strings.Join(paths, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *Checker) checkPlatform() CheckResult {
	res := CheckResult{Name: "platform", OK: true, Message: fmt.Sprintf("platform %s supported", c.platform)}
	if len(c.cfg.Platforms) == 0 {
		return res
	}
	goos := strings.SplitN(c.platform, "/", 2)[0]
	for _, p := range c.cfg.Platforms {
		if p == c.platform || p == goos {
			return res
		}
	}
	res.OK = false
	res.Message = fmt.Sprintf("unsupported platform %s (supported: %s)", c.platform, strings.Join(c.cfg.Platforms, ", "))
	return res
}

func (c *Checker) checkDisk() []CheckResult {
	if c.cfg.MinFreeMB <= 0 {
		return nil
	}
	need := uint64(c.cfg.MinFreeMB) * bytesPerMB

	var out []CheckResult
	seen := map[string]bool{}
	for _, p := range c.diskPaths {
		target := existingAncestor(p)
		if seen[target] {
			continue
		}
		seen[target] = true

		name := "disk:" + target
		free, err := c.freeBytes(target)
		if err != nil {
			// Unmeasurable filesystems are not a reason to refuse
			out = append(out, CheckResult{Name: name, OK: true, Message: fmt.Sprintf("free space on %s unknown: %v", target, err)})
			continue
		}
		if free < need {
			out = append(out, CheckResult{Name: name, OK: false, Message: fmt.Sprintf(
				"insufficient disk space on %s: %d MB free, %d MB required", target, free/bytesPerMB, c.cfg.MinFreeMB)})
			continue
		}
		out = append(out, CheckResult{Name: name, OK: true, Message: fmt.Sprintf("%d MB free on %s", free/bytesPerMB, target)})
	}
	return out
}

func (c *Checker) checkTools() []CheckResult {
	out := make([]CheckResult, 0, len(c.cfg.Tools))
	for _, tool := range c.cfg.Tools {
		name := "tool:" + tool
		path, err := c.runner.LookPath(tool)
		if err != nil {
			out = append(out, CheckResult{Name: name, OK: false, Message: fmt.Sprintf("missing required tool: %s", tool)})
			continue
		}
		out = append(out, CheckResult{Name: name, OK: true, Message: fmt.Sprintf("%s found at %s", tool, path)})
	}
	return out
}

func (c *Checker) checkNetwork(ctx context.Context) CheckResult {
	res := CheckResult{Name: "network"}
	if c.cfg.NetworkProbeURL == "" {
		res.OK = true
		res.Message = "no network probe configured"
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.NetworkProbeURL, nil)
	if err != nil {
		res.Message = fmt.Sprintf("invalid network probe url: %v", err)
		return res
	}
	resp, err := c.client.Do(req)
	if err != nil {
		res.Message = fmt.Sprintf("no network access: %v", err)
		return res
	}
	_ = resp.Body.Close()
	// Any HTTP answer proves connectivity
	res.OK = true
	res.Message = fmt.Sprintf("network reachable (%s answered %d)", c.cfg.NetworkProbeURL, resp.StatusCode)
	return res
}

// existingAncestor walks up from p to the first directory that exists
func existingAncestor(p string) string {
	p = filepath.Clean(p)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
