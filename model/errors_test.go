package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Session not found"}
	want := "NOT_FOUND: Session not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
	var _ error = (*TransportError)(nil)
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "repairDate", Code: "MAX", Message: "repairDate cannot be in the future"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "repairDate" {
		t.Errorf("Details[0].Field = %q", e.Details[0].Field)
	}
}

func TestNewBackendRejectedError(t *testing.T) {
	e := NewBackendRejectedError(409)
	if e.Code != ErrBackendRejected {
		t.Errorf("Code = %q, want %q", e.Code, ErrBackendRejected)
	}
	if !strings.Contains(e.Message, "409") {
		t.Errorf("Message = %q, want status in it", e.Message)
	}
}

func TestTransportError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{
			name: "status only",
			err:  &TransportError{Op: "findAll", Method: "GET", URL: "http://b/findAll", StatusCode: 500},
			want: "backend findAll GET http://b/findAll: status 500",
		},
		{
			name: "cause only",
			err:  &TransportError{Op: "create", Method: "POST", URL: "http://b/create", Err: io.ErrUnexpectedEOF},
			want: "backend create POST http://b/create: unexpected EOF",
		},
		{
			name: "status and cause",
			err:  &TransportError{Op: "update", Method: "PUT", URL: "http://b/update", StatusCode: 200, Err: io.EOF},
			want: "backend update PUT http://b/update: status 200: EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTransportError_wrapped(t *testing.T) {
	cause := &TransportError{Op: "delete", StatusCode: 404}
	wrapped := fmt.Errorf("screen: delete: %w", cause)

	te, ok := IsTransportError(wrapped)
	if !ok {
		t.Fatal("expected TransportError to be found")
	}
	if te.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", te.StatusCode)
	}

	if _, ok := IsTransportError(errors.New("plain")); ok {
		t.Error("plain error reported as TransportError")
	}
}

func TestTransportError_unwrap(t *testing.T) {
	err := &TransportError{Op: "findAll", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should see the cause")
	}
}

func TestTransportError_Timeout(t *testing.T) {
	if !(&TransportError{Err: fmt.Errorf("dial: %w", context.DeadlineExceeded)}).Timeout() {
		t.Error("deadline exceeded should be a timeout")
	}
	if (&TransportError{StatusCode: 504}).Timeout() {
		t.Error("a 504 response is a rejection, not a local timeout")
	}
	if (&TransportError{Err: io.EOF}).Timeout() {
		t.Error("EOF is not a timeout")
	}
}
