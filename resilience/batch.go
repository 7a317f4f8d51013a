package resilience

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Operation is one named call in a batch.
type Operation struct {
	Name    string
	Call    func(ctx context.Context) (any, error)
	Options []CallOption
}

// Result is the outcome of one batch operation.
type Result struct {
	Name  string
	Value any
	Err   error
}

// Success reports whether the operation returned without error.
func (r Result) Success() bool { return r.Err == nil }

// ExecuteBatch runs ops concurrently, each through ExecuteWithRetry, and
// returns their results in input order. One failure never cancels the rest.
func (ex *Executor) ExecuteBatch(ctx context.Context, ops []Operation) []Result {
	results := make([]Result, len(ops))

	var g errgroup.Group
	if ex.cfg.BatchConcurrency > 0 {
		g.SetLimit(ex.cfg.BatchConcurrency)
	}
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			v, err := ExecuteWithRetry(ctx, ex, op.Name, op.Call, op.Options...)
			results[i] = Result{Name: op.Name, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
