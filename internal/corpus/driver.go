package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/signalnine/sfmbench/internal/dataset"
	"github.com/signalnine/sfmbench/internal/evaluation"
	"github.com/signalnine/sfmbench/internal/pipeline"
	"github.com/signalnine/sfmbench/internal/result"
	"github.com/signalnine/sfmbench/internal/runner"
)

// Policy decides what a dataset failure does to the rest of the pass.
type Policy string

const (
	// FailFast stops the pass at the first failing dataset.
	FailFast Policy = "fail-fast"
	// Continue records the failure and moves on to the next dataset.
	Continue Policy = "continue"
)

func (p Policy) Valid() bool {
	return p == FailFast || p == Continue
}

// CorpusError is returned under the Continue policy when any dataset failed.
type CorpusError struct {
	Failed []string
	Errs   []error
	Total  int
}

func (e *CorpusError) Error() string {
	return fmt.Sprintf("%d of %d datasets failed: %s", len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}

// Unwrap exposes the per-dataset errors to errors.As.
func (e *CorpusError) Unwrap() []error { return e.Errs }

// Sequencer runs the pipeline of one dataset.
type Sequencer interface {
	Run(ctx context.Context, ds *dataset.Dataset) (*pipeline.Result, error)
	Layout(name string) result.Layout
}

type Driver struct {
	Input     string
	Sequencer Sequencer
	Discover  dataset.DiscoverOpts
	Policy    Policy
	// Parallel > 1 runs that many datasets at once.
	Parallel int
	// ResultPath, when set, receives the serialized corpus at the end of
	// the pass, including the partial corpus of a failed pass.
	ResultPath string
	Out        io.Writer
}

type slot struct {
	res *pipeline.Result
	err error
}

// Run processes every dataset and returns the corpus result. The returned
// corpus is non-nil whenever datasets were enumerated, also on error.
func (d *Driver) Run(ctx context.Context) (*result.Corpus, error) {
	datasets, err := dataset.Discover(d.Input, d.Discover)
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		log.Printf("warning: no datasets found in %s", d.Input)
	}

	corpus := result.NewCorpus()
	var runErr error
	if d.Parallel > 1 {
		runErr = d.runParallel(ctx, datasets, corpus)
	} else {
		runErr = d.runSequential(ctx, datasets, corpus)
	}

	if d.ResultPath != "" {
		if err := result.WriteFile(d.ResultPath, corpus); err != nil {
			if runErr != nil {
				log.Printf("warning: %v", err)
				return corpus, runErr
			}
			return corpus, err
		}
		fmt.Fprintf(d.out(), "Results written to %s\n", d.ResultPath)
	}
	return corpus, runErr
}

func (d *Driver) runSequential(ctx context.Context, datasets []*dataset.Dataset, corpus *result.Corpus) error {
	var failed []string
	var errs []error
	for i, ds := range datasets {
		fmt.Fprintf(d.out(), "Running %s (%d/%d)...\n", ds.Name, i+1, len(datasets))
		res, err := d.runOne(ctx, ds)
		if stop, err := d.merge(ctx, corpus, ds.Name, res, err); err != nil {
			if stop {
				return err
			}
			failed = append(failed, ds.Name)
			errs = append(errs, err)
		}
	}
	return corpusError(failed, errs, len(datasets))
}

// runParallel collects each dataset into its own slot, then merges the
// slots in enumeration order so the corpus matches a sequential pass.
// Under FailFast a failure cancels only the datasets after it; those are
// left out of the corpus like the ones that never started.
func (d *Driver) runParallel(parent context.Context, datasets []*dataset.Dataset, corpus *result.Corpus) error {
	ctxs := make([]context.Context, len(datasets))
	cancels := make([]context.CancelFunc, len(datasets))
	for i := range datasets {
		ctxs[i], cancels[i] = context.WithCancel(parent)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	slots := make([]slot, len(datasets))
	runner.RunPool(parent, d.Parallel, len(datasets), func(_ context.Context, i int) error {
		ctx := ctxs[i]
		if err := ctx.Err(); err != nil {
			slots[i] = slot{err: err}
			return err
		}
		fmt.Fprintf(d.out(), "Running %s...\n", datasets[i].Name)
		res, err := d.runOne(ctx, datasets[i])
		slots[i] = slot{res: res, err: err}
		if err != nil && d.Policy != Continue {
			for _, cancel := range cancels[i+1:] {
				cancel()
			}
		}
		return err
	})

	var failed []string
	var errs []error
	for i, s := range slots {
		name := datasets[i].Name
		if s.res == nil && s.err == nil {
			// never started
			break
		}
		if parent.Err() == nil && ctxs[i].Err() != nil && errors.Is(s.err, context.Canceled) {
			continue
		}
		if stop, err := d.merge(parent, corpus, name, s.res, s.err); err != nil {
			if stop {
				return err
			}
			failed = append(failed, name)
			errs = append(errs, err)
		}
	}
	return corpusError(failed, errs, len(datasets))
}

func (d *Driver) runOne(ctx context.Context, ds *dataset.Dataset) (*pipeline.Result, error) {
	l := d.Sequencer.Layout(ds.Name)
	for _, dir := range []string{l.Matching, l.SfM, l.Stats} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("dataset %s: creating output dir: %w", ds.Name, err)
		}
	}
	return d.Sequencer.Run(ctx, ds)
}

// merge records one dataset outcome. It returns the dataset error, and
// whether the pass must stop because of it.
func (d *Driver) merge(ctx context.Context, corpus *result.Corpus, name string, res *pipeline.Result, err error) (bool, error) {
	var timings result.Timings
	if res != nil {
		timings = res.Timings
	}
	if err == nil {
		corpus.Record(name, timings, res.Blocks)
		return false, nil
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// interrupted, not a dataset failure
		return true, err
	}

	log.Printf("ERROR: %v", err)
	f := classify(err)
	if f.Kind == result.FailureStage {
		var se *pipeline.StageError
		errors.As(err, &se)
		log.Printf("  command: %s", se.Command)
	}
	corpus.RecordFailure(name, timings, f)
	return d.Policy != Continue, err
}

func classify(err error) *result.Failure {
	f := &result.Failure{Kind: result.FailureOther, Message: err.Error()}
	var se *pipeline.StageError
	var pe *evaluation.ParseError
	switch {
	case errors.As(err, &se):
		f.Kind = result.FailureStage
		f.Stage = se.Stage
		f.ExitCode = se.ExitCode
	case errors.As(err, &pe):
		f.Kind = result.FailureParse
		f.Stage = pipeline.QualityEvaluation
	}
	return f
}

func corpusError(failed []string, errs []error, total int) error {
	if len(failed) == 0 {
		return nil
	}
	return &CorpusError{Failed: failed, Errs: errs, Total: total}
}

func (d *Driver) out() io.Writer {
	if d.Out != nil {
		return d.Out
	}
	return os.Stdout
}
