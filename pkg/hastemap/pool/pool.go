// Package pool dispatches per-file work across a bounded number of
// goroutines and streams results back as they complete, with no ordering
// guarantee. It's the concurrency backbone between the crawler's
// changed-file set and the reconciler, mirroring the bounded worker-pool
// pattern used elsewhere in this codebase for parallel filesystem work, but
// generalized to arbitrary task/result types and backed by the errgroup
// semaphore primitive instead of a hand-rolled channel pair.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work to dispatch: a key for attributing the result
// back to its caller, and the function to run.
type Task[T any] struct {
	Key string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of running one Task.
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// DefaultConcurrency is the number of logical CPUs, used when a caller
// doesn't specify an explicit worker count.
func DefaultConcurrency() int {
	return runtime.NumCPU()
}

// Run dispatches tasks across at most concurrency goroutines and returns a
// channel carrying each task's Result as it completes, in unspecified order.
// If concurrency is <= 1 or forceInBand is true, tasks run synchronously on
// the caller's goroutine before Run returns — behaviorally identical, and
// only observable by timing (used by callers that want deterministic
// single-threaded debugging, or genuinely have a concurrency budget of one).
//
// If ctx is cancelled, pending tasks are never started and in-flight tasks
// are given the cancelled context to observe; Run still waits for every
// started task to return before closing the result channel.
func Run[T any](ctx context.Context, tasks []Task[T], concurrency int, forceInBand bool) <-chan Result[T] {
	results := make(chan Result[T], len(tasks))

	if concurrency <= 1 || forceInBand {
		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				results <- Result[T]{Key: task.Key, Err: err}
				continue
			}
			value, err := task.Run(ctx)
			results <- Result[T]{Key: task.Key, Value: value, Err: err}
		}
		close(results)
		return results
	}

	group := &errgroup.Group{}
	group.SetLimit(concurrency)

	for _, task := range tasks {
		task := task
		group.Go(func() error {
			select {
			case <-ctx.Done():
				results <- Result[T]{Key: task.Key, Err: ctx.Err()}
				return nil
			default:
			}
			value, err := task.Run(ctx)
			results <- Result[T]{Key: task.Key, Value: value, Err: err}
			return nil
		})
	}

	go func() {
		// Wait is safe to call concurrently with further Go calls only if
		// no further Go calls are made after Wait begins, which holds here
		// since every task was already submitted above.
		_ = group.Wait()
		close(results)
	}()

	return results
}
