package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shpitdev/orthomap/pkg/pipeline/core"
	"github.com/shpitdev/orthomap/pkg/pipeline/retry"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func midpoint() float64 { return 0.5 }

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Sleep:       rec.sleep,
		Rand:        midpoint,
	}, func(_ context.Context, _ int) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(rec.delays))
	}
}

func TestDo_ExhaustionSleepsAttemptsMinusOne(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	boom := errors.New("connection refused")
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Sleep:       rec.sleep,
		Rand:        midpoint,
	}, func(_ context.Context, _ int) error {
		calls++
		return boom
	})

	var ex *retry.ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %T %v", err, err)
	}
	if ex.Attempts != 3 || !errors.Is(err, boom) {
		t.Fatalf("unexpected exhausted error: %#v", ex)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("delay[%d]=%s want %s", i, rec.delays[i], want[i])
		}
	}
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{MaxAttempts: 5, Sleep: rec.sleep}, func(_ context.Context, _ int) error {
		calls++
		return &core.PermanentError{Err: errors.New("malformed")}
	})
	var pe *core.PermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		t.Fatalf("permanent error must not be reported as exhaustion")
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("expected 1 call and no sleeps, got calls=%d sleeps=%d", calls, len(rec.delays))
	}
}

func TestDo_CustomPredicate(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), retry.Policy{
		MaxAttempts: 4,
		Retryable:   func(error) bool { return false },
		Sleep:       (&sleepRecorder{}).sleep,
	}, func(_ context.Context, _ int) error {
		calls++
		return errors.New("nope")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failing call, got calls=%d err=%v", calls, err)
	}
}

func TestDo_OnRetryReceivesZeroBasedAttempts(t *testing.T) {
	t.Parallel()

	var seen []int
	_ = retry.Do(context.Background(), retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       (&sleepRecorder{}).sleep,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			seen = append(seen, attempt)
		},
	}, func(_ context.Context, _ int) error {
		return errors.New("again")
	})
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Fatalf("unexpected OnRetry attempts: %v", seen)
	}
}

func TestDo_StopsWhenContextCancelledDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		OnRetry:     func(int, error, time.Duration) { cancel() },
	}, func(_ context.Context, _ int) error {
		calls++
		return errors.New("retry me")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestValue_ReturnsResult(t *testing.T) {
	t.Parallel()

	got, err := retry.Value(context.Background(), retry.Policy{Sleep: (&sleepRecorder{}).sleep}, func(_ context.Context, attempt int) (string, error) {
		if attempt == 0 {
			return "", errors.New("first try fails")
		}
		return "PDX1", nil
	})
	if err != nil || got != "PDX1" {
		t.Fatalf("Value()=(%q, %v)", got, err)
	}
}

func TestPolicyDelay(t *testing.T) {
	t.Parallel()

	p := retry.Policy{BaseDelay: 2 * time.Second}.WithDefaults()

	tests := []struct {
		name    string
		attempt int
		r       float64
		want    time.Duration
	}{
		{name: "first_low", attempt: 0, r: 0, want: 1600 * time.Millisecond},
		{name: "first_mid", attempt: 0, r: 0.5, want: 2 * time.Second},
		{name: "second_mid", attempt: 1, r: 0.5, want: 4 * time.Second},
		{name: "third_low", attempt: 2, r: 0, want: 6400 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Delay(tt.attempt, tt.r); got != tt.want {
				t.Fatalf("Delay(%d, %v)=%s want %s", tt.attempt, tt.r, got, tt.want)
			}
		})
	}

	// Upper bound of the jitter range is exclusive.
	if got := p.Delay(0, 0.999999); got >= 2400*time.Millisecond {
		t.Fatalf("jittered delay %s must stay below 2.4s", got)
	}
}

func TestPolicyDelay_RespectsMaxDelay(t *testing.T) {
	t.Parallel()

	p := retry.Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, JitterMin: 1, JitterMax: 1}.WithDefaults()
	if got := p.Delay(5, 0); got != 3*time.Second {
		t.Fatalf("expected capped delay 3s, got %s", got)
	}
}
