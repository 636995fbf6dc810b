package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/signalnine/sfmbench/internal/runner"
)

func TestPool(t *testing.T) {
	var count atomic.Int32
	errs := runner.RunPool(context.Background(), 3, 10, func(ctx context.Context, i int) error {
		count.Add(1)
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Errorf("job %d: unexpected error %v", i, err)
		}
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	errs := runner.RunPool(context.Background(), 2, 3, func(ctx context.Context, i int) error {
		if i == 1 {
			return fmt.Errorf("fail")
		}
		return nil
	})
	if len(errs) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(errs))
	}
	if errs[0] != nil || errs[1] == nil || errs[2] != nil {
		t.Errorf("errors in wrong slots: %v", errs)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	runner.RunPool(context.Background(), 2, 20, func(ctx context.Context, i int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		running.Add(-1)
		return nil
	})
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds 2", peak.Load())
	}
}

func TestPoolSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran atomic.Int32
	errs := runner.RunPool(ctx, 1, 5, func(ctx context.Context, i int) error {
		ran.Add(1)
		if i == 1 {
			cancel()
		}
		return nil
	})
	if ran.Load() != 2 {
		t.Errorf("expected 2 jobs to run, got %d", ran.Load())
	}
	for i := 2; i < 5; i++ {
		if !errors.Is(errs[i], context.Canceled) {
			t.Errorf("job %d: expected context.Canceled, got %v", i, errs[i])
		}
	}
}
