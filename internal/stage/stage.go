package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Stream selects where a stage's stdout and stderr go.
type Stream int

const (
	// Discard drops the stage output.
	Discard Stream = iota
	// Inherit forwards the output to the runner's writers.
	Inherit
	// Capture buffers the output into the Outcome.
	Capture
)

func (s Stream) String() string {
	switch s {
	case Inherit:
		return "inherit"
	case Capture:
		return "capture"
	default:
		return "discard"
	}
}

// TimeoutExitCode is reported for a stage killed by its timeout.
const TimeoutExitCode = 124

type Invocation struct {
	Dataset string
	Stage   string
	Path    string
	Args    []string
	Env     []string
	Stream  Stream
	Timeout time.Duration
}

// Argv is the full command line, executable first.
func (inv *Invocation) Argv() []string {
	return append([]string{inv.Path}, inv.Args...)
}

// String renders the command line for humans. Tokens holding spaces or
// quotes are quoted so the line can be pasted into a shell.
func (inv *Invocation) String() string {
	argv := inv.Argv()
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'$;&|<>*?()\\") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

type Outcome struct {
	ExitCode int
	TimedOut bool
	Elapsed  time.Duration
	Stdout   []byte
	Stderr   []byte
}

func (o *Outcome) Success() bool {
	return o.ExitCode == 0 && !o.TimedOut
}

// Runner executes one stage and waits for it. A non-zero exit is reported
// in the Outcome; an error means the stage could not be run at all.
type Runner interface {
	Run(ctx context.Context, inv *Invocation) (*Outcome, error)
}

// LocalRunner runs stages as child processes of this process.
type LocalRunner struct {
	// Env is the base environment; nil means os.Environ().
	Env []string
	// Stdout and Stderr receive inherited output (and captured output when
	// Tee is set). Nil means os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// Tee also forwards captured output while it is being buffered.
	Tee bool
}

func (r *LocalRunner) Run(ctx context.Context, inv *Invocation) (*Outcome, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Env = append(r.baseEnv(), inv.Env...)
	cmd.WaitDelay = 10 * time.Second

	var stdout, stderr bytes.Buffer
	switch inv.Stream {
	case Inherit:
		cmd.Stdout = r.stdout()
		cmd.Stderr = r.stderr()
	case Capture:
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if r.Tee {
			cmd.Stdout = io.MultiWriter(&stdout, r.stdout())
			cmd.Stderr = io.MultiWriter(&stderr, r.stderr())
		}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", inv.Stage, err)
	}
	err := cmd.Wait()
	out := &Outcome{Elapsed: time.Since(start)}
	if inv.Stream == Capture {
		out.Stdout = stdout.Bytes()
		out.Stderr = stderr.Bytes()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("waiting for %s: %w", inv.Stage, err)
		}
		if inv.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.ExitCode = TimeoutExitCode
			out.TimedOut = true
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s interrupted: %w", inv.Stage, ctx.Err())
		}
		out.ExitCode = exitErr.ExitCode()
		if out.ExitCode < 0 {
			// killed by a signal
			out.ExitCode = 1
		}
	}
	return out, nil
}

func (r *LocalRunner) baseEnv() []string {
	if r.Env != nil {
		return append([]string(nil), r.Env...)
	}
	return os.Environ()
}

func (r *LocalRunner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *LocalRunner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}
