package utils

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization of per-pixel work. This might be
// useful to set in tests where too much parallelism actually slows tests down in aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// FailurePolicy decides what happens to the remaining units of a pool when one unit fails.
type FailurePolicy int

const (
	// IsolateFailures runs every unit regardless of sibling failures and reports all of them.
	IsolateFailures FailurePolicy = iota
	// FailFast stops scheduling new units after the first failure.
	FailFast
)

// ParseFailurePolicy parses "isolate" or "fail_fast".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "isolate":
		return IsolateFailures, nil
	case "fail_fast":
		return FailFast, nil
	default:
		return IsolateFailures, errors.Errorf("unknown worker failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	switch p {
	case IsolateFailures:
		return "isolate"
	case FailFast:
		return "fail_fast"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

// WorkerFailure is the outcome of a single unit of work that returned an error or panicked.
type WorkerFailure struct {
	Index int
	Key   string
	Err   error
}

func (wf *WorkerFailure) Error() string {
	return fmt.Sprintf("unit %q failed: %v", wf.Key, wf.Err)
}

func (wf *WorkerFailure) Unwrap() error {
	return wf.Err
}

// WorkerFailures extracts every WorkerFailure combined into err.
func WorkerFailures(err error) []*WorkerFailure {
	var failures []*WorkerFailure
	for _, e := range multierr.Errors(err) {
		var wf *WorkerFailure
		if errors.As(e, &wf) {
			failures = append(failures, wf)
		}
	}
	return failures
}

// PoolOptions configures ParallelMap.
type PoolOptions struct {
	// Processes is the number of units that may run at the same time. Values below one mean one.
	Processes int
	Policy    FailurePolicy
}

// ParallelMap runs work once per item on a bounded pool and blocks until every scheduled unit is
// done. Units share nothing; each failure (including a recovered panic) becomes a WorkerFailure
// keyed by key(item), and all of them are combined into the returned error.
func ParallelMap[T any](
	ctx context.Context,
	items []T,
	opts PoolOptions,
	key func(T) string,
	work func(ctx context.Context, item T) error,
) error {
	processes := opts.Processes
	if processes < 1 {
		processes = 1
	}

	var group *errgroup.Group
	groupCtx := ctx
	if opts.Policy == FailFast {
		group, groupCtx = errgroup.WithContext(ctx)
	} else {
		group = &errgroup.Group{}
	}
	group.SetLimit(processes)

	failures := make([]error, len(items))
	for i, item := range items {
		if opts.Policy == FailFast && groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if groupCtx.Err() != nil {
				if opts.Policy == IsolateFailures {
					failures[i] = &WorkerFailure{Index: i, Key: key(item), Err: groupCtx.Err()}
				}
				return nil
			}
			if err := runCapturingPanic(groupCtx, item, work); err != nil {
				failures[i] = &WorkerFailure{Index: i, Key: key(item), Err: err}
				if opts.Policy == FailFast {
					return failures[i]
				}
			}
			return nil
		})
	}
	//nolint:errcheck
	group.Wait()
	return multierr.Combine(failures...)
}

func runCapturingPanic[T any](ctx context.Context, item T, work func(ctx context.Context, item T) error) (err error) {
	defer func() {
		if thePanic := recover(); thePanic != nil {
			err = fmt.Errorf("got panic running something in parallel: %v", thePanic)
		}
	}()
	return work(ctx, item)
}

// ParallelForEachRow calls f for every row in [0, height). Rows are split into contiguous blocks,
// one goroutine per block, with at most ParallelFactor blocks.
func ParallelForEachRow(height int, f func(y int)) {
	if height <= 0 {
		return
	}
	procs := ParallelFactor
	if procs > height {
		procs = height
	}
	blockSize := int(math.Ceil(float64(height) / float64(procs)))
	var waitGroup sync.WaitGroup
	for start := 0; start < height; start += blockSize {
		end := start + blockSize
		if end > height {
			end = height
		}
		waitGroup.Add(1)
		goutils.PanicCapturingGo(func() {
			defer waitGroup.Done()
			for y := start; y < end; y++ {
				f(y)
			}
		})
	}
	waitGroup.Wait()
}
