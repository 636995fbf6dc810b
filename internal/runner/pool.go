package runner

import (
	"context"
	"sync"
)

// Job processes the item at index i of a batch.
type Job func(ctx context.Context, i int) error

// RunPool runs n jobs with at most maxWorkers concurrently and returns the
// error of each index (nil on success). Once ctx is done, jobs that have
// not started are skipped and report ctx.Err().
func RunPool(ctx context.Context, maxWorkers, n int, job Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i := 0; i < n; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < n; j++ {
				errs[j] = ctx.Err()
			}
			wg.Wait()
			return errs
		}
		if err := ctx.Err(); err != nil {
			<-sem
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = job(ctx, i)
		}(i)
	}
	wg.Wait()
	return errs
}
