// Package stagetest provides a scripted stage.Runner for tests.
package stagetest

import (
	"context"
	"sync"
	"time"

	"github.com/signalnine/sfmbench/internal/stage"
)

// Step is the scripted behavior of one (dataset, stage) pair.
type Step struct {
	ExitCode int
	Stdout   string
	Err      error
	// Delay holds the stage until it passes or ctx is done.
	Delay    time.Duration
}

// Fake runs nothing. Unscripted stages succeed with empty output.
type Fake struct {
	// Steps is keyed by "dataset/stage"; a key of "*/stage" matches every
	// dataset.
	Steps   map[string]Step
	Elapsed time.Duration

	mu    sync.Mutex
	calls []*stage.Invocation
}

func (f *Fake) Run(ctx context.Context, inv *stage.Invocation) (*stage.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, ok := f.Steps[inv.Dataset+"/"+inv.Stage]
	if !ok {
		step = f.Steps["*/"+inv.Stage]
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	elapsed := f.Elapsed
	if elapsed == 0 {
		elapsed = 10 * time.Millisecond
	}
	out := &stage.Outcome{ExitCode: step.ExitCode, Elapsed: elapsed}
	if inv.Stream == stage.Capture {
		out.Stdout = []byte(step.Stdout)
	}
	return out, nil
}

// Calls returns the invocations seen so far.
func (f *Fake) Calls() []*stage.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stage.Invocation(nil), f.calls...)
}

// Stages returns "dataset/stage" for every call, in call order.
func (f *Fake) Stages() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Dataset+"/"+c.Stage)
	}
	return out
}

// Report renders an evaluation report with both statistic blocks.
const Report = `Baseline error statistics :
--
 min: 0.12
 max: 4.56
 mean: 1.23
 median: 1
Angular error statistics :
--
 min: 0.01
 max: 0.5
 mean: 0.2
 median: 0.18
`
