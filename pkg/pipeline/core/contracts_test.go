package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shpitdev/orthomap/pkg/pipeline/core"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want bool
	}{
		{name: "nil", in: nil, want: false},
		{name: "plain", in: errors.New("boom"), want: true},
		{name: "transient", in: &core.TransientError{Err: errors.New("reset")}, want: true},
		{name: "permanent", in: &core.PermanentError{Err: errors.New("bad shape")}, want: false},
		{name: "wrapped_permanent", in: fmt.Errorf("lookup: %w", &core.PermanentError{Err: errors.New("x")}), want: false},
		{name: "canceled", in: context.Canceled, want: false},
		{name: "deadline", in: context.DeadlineExceeded, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := core.Retryable(tt.in); got != tt.want {
				t.Fatalf("Retryable(%v)=%v want=%v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if core.IsTransient(errors.New("plain")) {
		t.Fatalf("plain error must not be transient")
	}
	wrapped := fmt.Errorf("fetch: %w", &core.TransientError{Err: errors.New("timeout")})
	if !core.IsTransient(wrapped) {
		t.Fatalf("wrapped transient error must be detected")
	}
}

func TestProcessFunc(t *testing.T) {
	var p core.Processor[string, int] = core.ProcessFunc[string, int](func(_ context.Context, in string) (int, error) {
		return len(in), nil
	})
	got, err := p.Process(context.Background(), "Pdx1")
	if err != nil || got != 4 {
		t.Fatalf("Process()=(%d, %v) want (4, nil)", got, err)
	}
}
