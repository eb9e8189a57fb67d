package worker_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shpitdev/orthomap/pkg/pipeline/worker"
)

func TestProcessAll_ReturnsInputOrder(t *testing.T) {
	t.Parallel()

	genes := []string{"Pdx1", "Ins1", "Gcg", "Sst"}
	out, err := worker.ProcessAll(context.Background(), genes, func(_ context.Context, g string) (int, error) {
		return len(g), nil
	}, worker.Options{Workers: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(genes) {
		t.Fatalf("expected %d outputs, got %d", len(genes), len(out))
	}
	for i, res := range out {
		if res.Index != i || res.Input != genes[i] || res.Output != len(genes[i]) || res.Err != nil {
			t.Fatalf("unexpected out[%d]: %#v", i, res)
		}
	}
}

func TestProcessAll_PartialOutputContinues(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, gene string) (string, error) {
		if gene == "Bad1" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"Bad1", "Pdx1"}, fn, worker.Options{Workers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if out[0].Err == nil || out[0].Err.Error() != "boom" {
		t.Fatalf("unexpected out[0]: %#v", out[0])
	}
	if out[1].Err != nil || out[1].Output != "ok" {
		t.Fatalf("unexpected out[1]: %#v", out[1])
	}
}

func TestProcessAll_PanicIsIsolated(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, gene string) (string, error) {
		if gene == "Crash" {
			panic("index out of range")
		}
		return gene, nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"Pdx1", "Crash", "Ins1"}, fn, worker.Options{Workers: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var pe *worker.PanicError
	if !errors.As(out[1].Err, &pe) {
		t.Fatalf("expected PanicError for crashing item, got %#v", out[1])
	}
	if pe.Value != "index out of range" || len(pe.Stack) == 0 {
		t.Fatalf("unexpected panic error: %#v", pe)
	}
	if out[0].Err != nil || out[2].Err != nil {
		t.Fatalf("siblings must be unaffected: %#v %#v", out[0], out[2])
	}
}

func TestProcessAll_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 3
	var inFlight, peak atomic.Int32
	fn := func(_ context.Context, _ int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	}

	items := make([]int, 20)
	if _, err := worker.ProcessAll(context.Background(), items, fn, worker.Options{Workers: workers}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got > workers {
		t.Fatalf("peak concurrency %d exceeds %d workers", got, workers)
	}
}

func TestProcessAll_EmptyInput(t *testing.T) {
	t.Parallel()

	out, err := worker.ProcessAll(context.Background(), nil, func(_ context.Context, s string) (string, error) {
		t.Fatalf("processor must not be called")
		return s, nil
	}, worker.Options{})
	if err != nil || len(out) != 0 {
		t.Fatalf("ProcessAll(nil)=(%v, %v)", out, err)
	}
}

func TestProcessAllWithCallback_CompletesInCompletionOrder(t *testing.T) {
	t.Parallel()

	releaseSlow := make(chan struct{})
	startedSlow := make(chan struct{})
	var firstCallbackInput atomic.Value
	firstCallbackInput.Store("")

	fn := func(_ context.Context, gene string) (string, error) {
		if gene == "Slow1" {
			close(startedSlow)
			<-releaseSlow
		}
		return gene, nil
	}

	var mu sync.Mutex
	var seen []string
	doneErr := make(chan error, 1)
	go func() {
		_, err := worker.ProcessAllWithCallback(
			context.Background(),
			[]string{"Slow1", "Fast1"},
			fn,
			func(res worker.Result[string, string]) error {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, res.Input)
				if len(seen) == 1 {
					firstCallbackInput.Store(res.Input)
				}
				return nil
			},
			worker.Options{Workers: 2},
		)
		doneErr <- err
	}()

	select {
	case <-startedSlow:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for slow task to start")
	}

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if firstCallbackInput.Load().(string) == "Fast1" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := firstCallbackInput.Load().(string); got != "Fast1" {
		t.Fatalf("expected fast callback first, got %q", got)
	}

	close(releaseSlow)
	select {
	case err := <-doneErr:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, []string{"Fast1", "Slow1"}) {
		t.Fatalf("unexpected callback order: %v", seen)
	}
}

func TestProcessAllWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("disk full")
	calls := 0
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"Pdx1", "Ins1", "Gcg"},
		func(_ context.Context, gene string) (string, error) {
			return gene, nil
		},
		func(worker.Result[string, string]) error {
			calls++
			return callbackErr
		},
		worker.Options{Workers: 1},
	)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback must not run after it failed, got %d calls", calls)
	}
}
