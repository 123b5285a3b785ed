package ingesterr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfUnwrapsThroughLayers(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewMerge(errors.New("copy rejected")))

	if KindOf(err) != KindMerge {
		t.Errorf("KindOf() = %v, want merge", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Error("merge failures are retryable from the top of the transfer")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain errors classify as internal")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestUserMessageNeverLeaksCause(t *testing.T) {
	err := NewConstraint(errors.New("pq: duplicate key value violates unique constraint"))

	msg := UserMessage(err)
	if msg != "failed to save dataset metadata" {
		t.Errorf("UserMessage() = %q", msg)
	}

	if UserMessage(errors.New("raw driver output")) != "internal error" {
		t.Error("plain errors must fall back to a generic message")
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewValidation("bad file"), http.StatusBadRequest},
		{NewPermission("denied", nil), http.StatusForbidden},
		{NewConflict(7), http.StatusConflict},
		{NewTransient("net", nil), http.StatusBadGateway},
		{NewMerge(nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		var e *Error
		if !errors.As(tc.err, &e) {
			t.Fatalf("%v is not an *Error", tc.err)
		}
		if e.StatusCode() != tc.want {
			t.Errorf("%v StatusCode() = %d, want %d", e.Kind(), e.StatusCode(), tc.want)
		}
	}
}

func TestConflictCarriesExistingID(t *testing.T) {
	var e *Error
	if !errors.As(NewConflict(42), &e) {
		t.Fatal("NewConflict is not an *Error")
	}
	if e.ConflictID != 42 {
		t.Errorf("ConflictID = %d, want 42", e.ConflictID)
	}
}
