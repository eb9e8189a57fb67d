package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Workers bounds the number of items processed concurrently.
	Workers int
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	// Index is the position of Input in the submitted slice.
	Index  int
	Input  In
	Output Out
	Err    error
}

// PanicError reports a processor that panicked. The panic is confined to its item.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panic: %v", e.Value)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	return o
}

// ProcessAll runs the processor over all input items and returns results in input order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items and invokes onResult
// as each item completes. Items are dispatched in input order; the callback receives
// completion-order results, always from the calling goroutine, so state it touches needs
// no locking. A callback error cancels the run and is returned.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]Result[In, Out], len(items))
	done := make(chan Result[In, Out], opts.Workers)

	var g errgroup.Group
	g.SetLimit(opts.Workers)

	go func() {
		for i, item := range items {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				res := processOne(runCtx, i, item, processor)
				select {
				case done <- res:
				case <-runCtx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	var firstErr error
	for res := range done {
		out[res.Index] = res
		if onResult == nil || firstErr != nil {
			continue
		}
		if err := onResult(res); err != nil {
			firstErr = err
			cancel()
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	idx int,
	item In,
	processor func(context.Context, In) (Out, error),
) (res Result[In, Out]) {
	res = Result[In, Out]{Index: idx, Input: item}
	defer func() {
		if r := recover(); r != nil {
			res.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	res.Output, res.Err = processor(ctx, item)
	return res
}
