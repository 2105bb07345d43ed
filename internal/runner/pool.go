package runner

import (
	"context"
	"iter"
	"sync"
)

type Job func() error

// RunPool executes jobs with at most maxWorkers concurrently. Jobs are
// pulled lazily; once ctx is done no new job starts, while started jobs
// run to completion. Returns all errors.
func RunPool(ctx context.Context, maxWorkers int, jobs iter.Seq[Job]) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, maxWorkers)

	for job := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := j(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()
	return errs
}
