package errors

import (
	"strings"
	"testing"
)

func TestValidationErrorFormat(t *testing.T) {
	err := NewValidationError("invalid task ID").WithField("id").WithValue("1.2.3")
	msg := err.Error()
	if !strings.Contains(msg, "field=id") {
		t.Errorf("expected field in message, got %q", msg)
	}
	if !strings.Contains(msg, "value=1.2.3") {
		t.Errorf("expected value in message, got %q", msg)
	}
	if !Is(err, &ValidationError{}) {
		t.Error("expected Is to match ValidationError target")
	}
}

func TestNotFoundErrorSuggestion(t *testing.T) {
	err := NewNotFoundError("workstream", "demo").WithSuggestion("run 'work create' first")
	msg := err.Error()
	if !strings.Contains(msg, "workstream 'demo' not found") {
		t.Errorf("unexpected message: %q", msg)
	}
	if !strings.Contains(msg, "work create") {
		t.Errorf("expected suggestion in message: %q", msg)
	}
}

func TestApprovalErrorForceHint(t *testing.T) {
	err := NewApprovalError("approve stage 2", "3 tasks still pending")
	if strings.Contains(err.Error(), "--force") {
		t.Error("force hint should be absent by default")
	}
	err = err.WithForceHint()
	if !strings.Contains(err.Error(), "--force") {
		t.Errorf("expected force hint, got %q", err.Error())
	}
}

func TestLockErrorMatchesSentinel(t *testing.T) {
	err := NewLockError("/tmp/tasks.json", ErrLocked).WithHolder("pid 42 on devbox")
	if !Is(err, ErrLocked) {
		t.Error("expected LockError to match ErrLocked sentinel")
	}
	if !strings.Contains(err.Error(), "pid 42 on devbox") {
		t.Errorf("expected holder in message: %q", err.Error())
	}
}

func TestIsUserFacing(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", NewValidationError("bad"), true},
		{"not found", NewNotFoundError("task", "01.01.01.01"), true},
		{"approval", NewApprovalError("start", "plan is draft"), true},
		{"lock", NewLockError("x", nil), true},
		{"plain", New("boom"), false},
		{"wrapped semantic", Wrap(NewValidationError("bad"), "loading"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUserFacing(tc.err); got != tc.want {
				t.Errorf("IsUserFacing(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(New("boom")) {
		t.Error("plain errors are not retryable")
	}
	if !IsRetryable(NewLockError("x", ErrLocked)) {
		t.Error("lock contention is retryable")
	}
}
