package execx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/arthur-debert/wrapup/pkg/errors"
)

// Handler produces the outcome of a faked command
type Handler func(cmd Command) (Result, error)

type fakeRule struct {
	prefix  string
	handler Handler
}

// FakeRunner is a scripted Runner for tests. Rules match on the rendered
// command line prefix; the most recently added matching rule wins.
// Unmatched commands succeed with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	rules   []fakeRule
	calls   []Command
	missing map[string]bool
}

// NewFakeRunner creates an empty FakeRunner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{missing: map[string]bool{}}
}

// On registers h for commands whose line starts with prefix
func (f *FakeRunner) On(prefix string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{prefix: prefix, handler: h})
	return f
}

// Missing makes LookPath fail for the given executables
func (f *FakeRunner) Missing(names ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.missing[n] = true
	}
	return f
}

// Run implements Runner
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var h Handler
	line := cmd.String()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.rules[i].prefix) {
			h = f.rules[i].handler
			break
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, errors.Wrap(err, errors.ErrCancelled, "command interrupted")
	}
	if h == nil {
		return Result{}, nil
	}
	return h(cmd)
}

// LookPath implements Runner
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return "/usr/local/bin/" + name, nil
}

// Calls returns the rendered command lines in invocation order
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Commands returns the recorded commands
func (f *FakeRunner) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// Count returns how many recorded command lines start with prefix
func (f *FakeRunner) Count(prefix string) int {
	n := 0
	for _, line := range f.Calls() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls, keeping rules
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Output is a Handler that succeeds with the given stdout
func Output(stdout string) Handler {
	return func(Command) (Result, error) {
		return Result{Stdout: stdout}, nil
	}
}

// Fail is a Handler that exits with code and stderr
func Fail(code int, stderr string) Handler {
	return func(c Command) (Result, error) {
		return Result{ExitCode: code, Stderr: stderr},
			errors.Newf(errors.ErrCommand, "command failed: %s", c.String()).WithDetail("exitCode", code)
	}
}

// FailTimes fails the first n invocations, then delegates to then
func FailTimes(n int, then Handler) Handler {
	var mu sync.Mutex
	count := 0
	return func(c Command) (Result, error) {
		mu.Lock()
		count++
		current := count
		mu.Unlock()
		if current <= n {
			return Fail(1, fmt.Sprintf("attempt %d failed", current))(c)
		}
		if then == nil {
			return Result{}, nil
		}
		return then(c)
	}
}
