// Package execx runs external commands on behalf of the provisioning
// stages: the package manager, the dependency installer, the guest
// installer and the quarantine tool.
package execx

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
)

// ExitNotFound is reported when the executable could not be located
const ExitNotFound = 127

// Command describes one invocation
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is added on top of the current process environment
	Env map[string]string
	// Stream, when set, receives stdout and stderr while the command runs
	Stream io.Writer
}

// String renders the command line for logs and dry-run output
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands. Implementations block until the command exits
// or ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(name string) (string, error)
}

// OSRunner runs commands with os/exec
type OSRunner struct {
	logger zerolog.Logger
}

// NewOSRunner creates a runner backed by the host
func NewOSRunner() *OSRunner {
	return &OSRunner{logger: logging.GetLogger("execx")}
}

// LookPath resolves name on PATH
func (r *OSRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes cmd and waits for it. A non-zero exit is returned as an
// ErrCommand error together with the populated Result.
func (r *OSRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Name == "" {
		return Result{}, errors.New(errors.ErrInvalidInput, "command requires a name")
	}

	logging.LogCommand(c.Name, c.Args)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Dir != "" {
		if _, err := os.Stat(c.Dir); err != nil {
			return Result{}, errors.Wrapf(err, errors.ErrFileAccess, "working directory does not exist: %s", c.Dir)
		}
		cmd.Dir = c.Dir
	}

	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	}

	var stdout, stderr bytes.Buffer
	if c.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, c.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		r.logger.Debug().Str("command", c.String()).Msg("Command executed successfully")
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case stderrors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case stderrors.Is(err, exec.ErrNotFound):
		result.ExitCode = ExitNotFound
	default:
		result.ExitCode = -1
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.Wrapf(ctxErr, errors.ErrCancelled, "command interrupted: %s", c.Name)
	}

	r.logger.Debug().
		Err(err).
		Str("command", c.String()).
		Int("exitCode", result.ExitCode).
		Str("stderr", result.Stderr).
		Msg("Command execution failed")

	return result, errors.Wrapf(err, errors.ErrCommand, "command failed: %s", c.String()).
		WithDetail("exitCode", result.ExitCode)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
