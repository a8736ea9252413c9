package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestBeaconError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeAppendFailed, "append failed")
	expected := "[STORAGE:APPEND_FAILED] append failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBeaconError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCategoryStorage, CodeAppendFailed, "append failed", cause)
	expected := "[STORAGE:APPEND_FAILED] append failed: disk full"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBeaconError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryTransport, CodePostFailed, "post failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestBeaconError_Is(t *testing.T) {
	err1 := New(ErrCategoryTransport, CodePostFailed, "first")
	err2 := New(ErrCategoryTransport, CodePostFailed, "second")
	err3 := New(ErrCategoryTransport, CodeBadResponse, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryTransport, CodePostFailed, true},
		{ErrCategoryTransport, CodeBadResponse, true},
		{ErrCategoryTransport, CodePayloadTooLarge, false},
		{ErrCategoryUpload, CodePartialAck, true},
		{ErrCategoryStorage, CodeAppendFailed, false},
		{ErrCategoryStorage, CodeStoreCorrupt, false},
		{ErrCategoryValidation, CodeEmptyIdentify, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := New(ErrCategoryConfig, CodeInvalidConfig, "bad config")
	if GetCategory(err) != ErrCategoryConfig {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryConfig)
	}
	if GetCode(err) != CodeInvalidConfig {
		t.Errorf("got %q, want %q", GetCode(err), CodeInvalidConfig)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-BeaconError should return empty category")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if GetCode(wrapped) != CodeInvalidConfig {
		t.Error("GetCode should walk wrapped error chains")
	}
}

func TestWithDetails(t *testing.T) {
	base := New(ErrCategoryStorage, CodeQueryFailed, "query failed")
	detailed := base.WithDetails(map[string]interface{}{"table": "events"})

	if base.Details != nil {
		t.Error("WithDetails must not mutate the original error")
	}
	if detailed.Details["table"] != "events" {
		t.Error("details not attached")
	}
	if !errors.Is(detailed, base) {
		t.Error("details must not affect Is matching")
	}
}
