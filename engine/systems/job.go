package systems

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// JobSystem runs batches of independent jobs on a bounded number of
// goroutines.
type JobSystem struct {
	numWorkers int
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")

func NewJobSystem(numWorkers int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	return &JobSystem{
		numWorkers: numWorkers,
	}, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

// Run calls job for every index in [0, n). It stops scheduling new jobs after
// the first failure and returns that error once running jobs are done.
func (js *JobSystem) Run(ctx context.Context, n int, job func(index int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(js.numWorkers)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		index := i
		g.Go(func() error {
			return job(index)
		})
	}
	return g.Wait()
}
