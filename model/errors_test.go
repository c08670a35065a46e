package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "workflow not found"}
	want := "NOT_FOUND: workflow not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"bad request", NewBadRequestError("bad"), ErrBadRequest},
		{"unauthorized", NewUnauthorizedError("who"), ErrUnauthorized},
		{"not found", NewNotFoundError("gone"), ErrNotFound},
		{"conflict", NewConflictError("taken"), ErrConflict},
		{"validation", NewValidationError(nil), ErrValidationError},
		{"internal", NewInternalError(), ErrInternalError},
		{"store unavailable", NewStoreUnavailableError("down"), ErrStoreUnavailable},
		{"duplicate event", NewDuplicateEventError("k1"), ErrDuplicateEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
		})
	}
}

func TestNewValidationError_details(t *testing.T) {
	details := []FieldError{
		{Field: "actions", Code: "REQUIRED", Message: "at least one action is required"},
	}
	e := NewValidationError(details)
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "actions" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "actions")
	}
}

func TestCodeOf_wrapped(t *testing.T) {
	wrapped := fmt.Errorf("loading workflow: %w", NewNotFoundError("workflow wf-1 not found"))
	if got := CodeOf(wrapped); got != ErrNotFound {
		t.Errorf("CodeOf(wrapped) = %q, want %q", got, ErrNotFound)
	}
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound(wrapped) = false, want true")
	}
}

func TestCodeOf_plain(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound(nil) = true, want false")
	}
}
