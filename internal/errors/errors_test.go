package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// GenerationError Tests
// -----------------------------------------------------------------------------

func TestGenerationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *GenerationError
		want string
	}{
		{
			name: "empty output",
			err:  NewGenerationError("features", 3, ErrEmptyOutput),
			want: "generation error [phase=features, iteration=3]: generation produced no files",
		},
		{
			name: "backend failure with server",
			err:  NewGenerationError("scaffold", 1, New("503")).WithServer("gemini"),
			want: "generation error [phase=scaffold, iteration=1, server=gemini]: backend call failed: 503",
		},
		{
			name: "no context",
			err:  NewGenerationError("", 0, New("boom")),
			want: "generation error: backend call failed: boom",
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

func TestGenerationError_Classification(t *testing.T) {
	cause := New("connection reset")
	err := NewGenerationError("shared", 2, cause)

	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if IsFatal(err) {
		t.Error("IsFatal() = true, want false")
	}
	if !Is(err, cause) {
		t.Error("errors.Is should match the cause")
	}
	var genErr *GenerationError
	if !As(fmt.Errorf("wrapped: %w", err), &genErr) {
		t.Fatal("errors.As should find GenerationError through wrapping")
	}
	if genErr.Phase != "shared" {
		t.Errorf("Phase = %q, want %q", genErr.Phase, "shared")
	}
}

// -----------------------------------------------------------------------------
// ParseError / CritiqueParseError Tests
// -----------------------------------------------------------------------------

func TestParseError(t *testing.T) {
	err := NewParseError("../../etc/passwd", "path contains parent-directory segment")

	want := "parse error [path=../../etc/passwd]: path contains parent-directory segment"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if GetSeverity(err) != SeverityWarning {
		t.Errorf("GetSeverity() = %v, want %v", GetSeverity(err), SeverityWarning)
	}
	if IsFatal(err) || IsRetryable(err) {
		t.Error("parse errors are neither fatal nor retryable")
	}
	if !Is(err, &ParseError{}) {
		t.Error("errors.Is should match any ParseError")
	}
}

func TestCritiqueParseError_PreviewIsBounded(t *testing.T) {
	raw := strings.Repeat("x", 500)
	err := NewCritiqueParseError(raw, New("unexpected end of JSON input"))

	if len(err.Preview) != 203 {
		t.Errorf("len(Preview) = %d, want 203", len(err.Preview))
	}
	if !strings.HasSuffix(err.Preview, "...") {
		t.Error("truncated preview should end with ...")
	}
	if !strings.Contains(err.Error(), "unexpected end of JSON input") {
		t.Errorf("Error() = %q, should include the cause", err.Error())
	}
}

// -----------------------------------------------------------------------------
// BudgetExceededError Tests
// -----------------------------------------------------------------------------

func TestBudgetExceededError(t *testing.T) {
	err := NewBudgetExceededError("max_total_iterations", 20, 20).WithPhase("integration")

	want := "budget exceeded [phase=integration]: max_total_iterations (20/20)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrBudgetExceeded) {
		t.Error("errors.Is(err, ErrBudgetExceeded) = false, want true")
	}
	if IsFatal(err) {
		t.Error("budget errors end a phase, not the run")
	}
}

// -----------------------------------------------------------------------------
// TimeoutError / RepoContextError Tests
// -----------------------------------------------------------------------------

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError(31*time.Minute, 30*time.Minute).WithPhase("features")

	want := "timeout error [phase=features]: elapsed 31m0s exceeds limit 30m0s"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsFatal(err) {
		t.Error("IsFatal() = false, want true")
	}
	if !Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want critical", GetSeverity(err))
	}

	withCause := NewTimeoutError(time.Second, 0).WithCause(context.DeadlineExceeded)
	if !Is(withCause, context.DeadlineExceeded) {
		t.Error("errors.Is should match the cause")
	}
}

func TestRepoContextError(t *testing.T) {
	cause := New("no such directory")
	err := NewRepoContextError("/tmp/missing", cause)

	if !IsFatal(err) {
		t.Error("IsFatal() = false, want true")
	}
	if !Is(err, cause) {
		t.Error("errors.Is should match the cause")
	}
	want := "repo context error [root=/tmp/missing]: failed to load repository context: no such directory"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// -----------------------------------------------------------------------------
// ValidationError Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError("must be between 0 and 1").
		WithField("guardrails.min_confidence_to_advance").
		WithValue(1.5)

	want := "validation error [field=guardrails.min_confidence_to_advance, value=1.5]: must be between 0 and 1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("errors.Is(err, ErrInvalidInput) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Helper Tests
// -----------------------------------------------------------------------------

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("plain"), false},
		{"timeout", NewTimeoutError(time.Second, time.Second), true},
		{"wrapped timeout", Wrap(NewTimeoutError(time.Second, time.Second), "phase loop"), true},
		{"canceled sentinel", Wrap(ErrCanceled, "run"), true},
		{"generation", NewGenerationError("p", 1, ErrEmptyOutput), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity_Defaults(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want debug", got)
	}
	if got := GetSeverity(errors.New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want error", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := NewParseError("a.go", "missing code fence")
	err := Wrapf(base, "attempt %d", 2)
	if err.Error() != "attempt 2: parse error [path=a.go]: missing code fence" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	var pe *ParseError
	if !As(err, &pe) {
		t.Error("wrapped error should still be a ParseError")
	}
}
