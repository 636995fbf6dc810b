package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/sfmbench/internal/dataset"
	"github.com/signalnine/sfmbench/internal/evaluation"
	"github.com/signalnine/sfmbench/internal/result"
	"github.com/signalnine/sfmbench/internal/stage"
)

// StageError reports a stage that exited non-zero or could not be started
// (ExitCode -1, Err set).
type StageError struct {
	Dataset  string
	Stage    string
	ExitCode int
	TimedOut bool
	Command  string
	Err      error
}

func (e *StageError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("dataset %s: stage %s failed: %v", e.Dataset, e.Stage, e.Err)
	case e.TimedOut:
		return fmt.Sprintf("dataset %s: stage %s timed out", e.Dataset, e.Stage)
	default:
		return fmt.Sprintf("dataset %s: stage %s exited with status %d", e.Dataset, e.Stage, e.ExitCode)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

type Result struct {
	Dataset string
	Timings result.Timings
	Blocks  map[string]result.StatisticBlock
	// Log is the captured evaluation output.
	Log []byte
}

type Sequencer struct {
	Runner   stage.Runner
	Software string
	Profile  Profile
	Engine   Engine
	Output   string
	// ExtraArgs are appended to a stage's arguments, keyed by stage name.
	ExtraArgs map[string][]string
	Env       []string
	Timeout   time.Duration
	// Verbose passes the output of the reconstruction stages through.
	Verbose bool
	// Out receives progress lines; nil means os.Stdout.
	Out io.Writer
}

// Layout returns the output directories of a dataset.
func (s *Sequencer) Layout(name string) result.Layout {
	return result.DatasetLayout(s.Output, name, s.Engine.SfMDir())
}

// Plan builds the invocations of every stage for a dataset, in order.
func (s *Sequencer) Plan(ds *dataset.Dataset, cal *dataset.Calibration) []*stage.Invocation {
	l := s.Layout(ds.Name)
	stream := stage.Discard
	if s.Verbose {
		stream = stage.Inherit
	}
	invs := make([]*stage.Invocation, 0, len(Stages))
	for _, name := range Stages {
		bin, args := s.Profile.args(name, s.Engine, ds, cal, l)
		args = append(args, s.ExtraArgs[name]...)
		inv := &stage.Invocation{
			Dataset: ds.Name,
			Stage:   name,
			Path:    filepath.Join(s.Software, bin),
			Args:    args,
			Env:     s.Env,
			Stream:  stream,
			Timeout: s.Timeout,
		}
		if name == QualityEvaluation {
			inv.Stream = stage.Capture
		}
		invs = append(invs, inv)
	}
	return invs
}

// Run executes the pipeline of one dataset. Stages run strictly in order
// and the first failure stops the dataset; the returned Result always
// carries the timings of the stages that succeeded, even with an error.
func (s *Sequencer) Run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	res := &Result{Dataset: ds.Name, Timings: result.Timings{}}

	cal, err := ds.Calibration()
	if err != nil {
		return res, err
	}

	for _, inv := range s.Plan(ds, cal) {
		fmt.Fprintf(s.out(), "  . %s\n", inv.Stage)
		out, err := s.Runner.Run(ctx, inv)
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			return res, &StageError{Dataset: ds.Name, Stage: inv.Stage, ExitCode: -1, Command: inv.String(), Err: err}
		}

		if inv.Stream == stage.Capture {
			res.Log = out.Stdout
			if err := s.writeLog(ds.Name, out); err != nil {
				log.Printf("warning: %v", err)
			}
		}

		if !out.Success() {
			if len(out.Stderr) > 0 {
				log.Printf("%s stderr:\n%s", inv.Stage, out.Stderr)
			}
			return res, &StageError{
				Dataset:  ds.Name,
				Stage:    inv.Stage,
				ExitCode: out.ExitCode,
				TimedOut: out.TimedOut,
				Command:  inv.String(),
			}
		}
		res.Timings[inv.Stage] = out.Elapsed.Seconds()
		fmt.Fprintf(s.out(), "    done in %.2fs\n", out.Elapsed.Seconds())
	}

	rep, err := evaluation.Parse(bytes.NewReader(res.Log))
	if err != nil {
		return res, fmt.Errorf("dataset %s: parsing evaluation report %s: %w", ds.Name, s.Layout(ds.Name).EvaluationLog(), err)
	}
	if len(rep.Blocks) == 0 {
		log.Printf("warning: dataset %s: evaluation output has no statistics", ds.Name)
	}
	res.Blocks = rep.Blocks
	return res, nil
}

func (s *Sequencer) writeLog(name string, out *stage.Outcome) error {
	path := s.Layout(name).EvaluationLog()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating stats dir: %w", err)
	}
	if err := os.WriteFile(path, out.Stdout, 0o644); err != nil {
		return fmt.Errorf("writing evaluation log: %w", err)
	}
	return nil
}

func (s *Sequencer) out() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}
