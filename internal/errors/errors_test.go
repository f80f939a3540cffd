package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	// Given: a network-class error code
	err := New(ErrCodeBackendUnavailable, "search index unreachable", nil)

	// Then: category, severity and retryable are derived from the code
	if err.Category != CategoryNetwork {
		t.Errorf("expected NETWORK category, got %s", err.Category)
	}
	if err.Severity != SeverityWarning {
		t.Errorf("expected WARNING severity, got %s", err.Severity)
	}
	if !err.Retryable {
		t.Error("expected network error to be retryable")
	}
}

func TestNew_ValidationNotRetryable(t *testing.T) {
	err := BadRequest("queryTextSource missing", nil)

	if err.Category != CategoryValidation {
		t.Errorf("expected VALIDATION category, got %s", err.Category)
	}
	if err.Retryable {
		t.Error("bad-request errors must not be retryable")
	}
}

func TestError_FormatIncludesCode(t *testing.T) {
	err := New(ErrCodeUnknownTextSource, "no such source: fancy", nil)
	want := "[ERR_402_UNKNOWN_TEXT_SOURCE] no such source: fancy"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeBackendUnavailable, cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if err.Message != "connection refused" {
		t.Errorf("message should come from cause, got %q", err.Message)
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeSearchExhausted, "all stages failed", nil)
	b := New(ErrCodeSearchExhausted, "different message", nil)

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
}

func TestIsBadRequest_ThroughWrapping(t *testing.T) {
	inner := BadRequest("malformed payload", nil)
	outer := fmt.Errorf("resolve: %w", inner)

	if !IsBadRequest(outer) {
		t.Error("IsBadRequest should see through fmt wrapping")
	}
	if IsUnavailable(outer) {
		t.Error("validation error is not an availability error")
	}
}

func TestWithDetail_Chains(t *testing.T) {
	err := Internal("boom", nil).
		WithDetail("trace_id", "t-1").
		WithDetail("request_id", "r-1")

	if err.Details["trace_id"] != "t-1" || err.Details["request_id"] != "r-1" {
		t.Errorf("details not recorded: %v", err.Details)
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(ErrCodeInternal, nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}
