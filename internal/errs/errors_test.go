package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "store failure", err: ErrStore, want: true},
		{name: "wrapped store failure", err: fmt.Errorf("hgetall reed:blog:/a.md: %w", ErrStore), want: true},
		{name: "queue full", err: ErrQueueFull, want: true},
		{name: "not found", err: ErrNotFound, want: false},
		{name: "transform", err: fmt.Errorf("%w: /a.md", ErrTransform), want: false},
		{name: "precondition", err: ErrPrecondition, want: false},
		{name: "unrelated", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("open /posts: %w", ErrPrecondition)) {
		t.Error("wrapped precondition should be fatal")
	}
	if IsFatal(ErrStore) {
		t.Error("store failure should not be fatal")
	}
	if IsFatal(nil) {
		t.Error("nil should not be fatal")
	}
}
