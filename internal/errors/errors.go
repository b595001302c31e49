// Package errors provides the error taxonomy used by the horizon engine and its
// collaborators. It defines sentinel errors, typed errors carrying run context,
// and classification helpers that the phase scheduler uses to decide whether a
// failure consumes a retry slot, ends a phase, or aborts the whole run.
//
// # Error Types
//
// Engine errors, in increasing order of impact:
//   - GenerationError: the generation backend failed or returned nothing (retried within budget)
//   - ParseError: a file block was malformed or its path was rejected (recorded, non-fatal)
//   - CritiqueParseError: the critique verdict was not valid JSON (recovered via fallback)
//   - BudgetExceededError: an iteration cap was hit (ends the phase, not the run)
//   - TimeoutError: the wall-clock limit was exceeded (fatal, aborts the run)
//   - RepoContextError: the initial repository context fetch failed (fatal, no phases run)
//
// ValidationError covers invalid configuration and work packets.
//
// # Usage
//
//	err := errors.NewGenerationError("scaffold", 2, cause).WithServer("gemini")
//	if errors.IsRetryable(err) { ... }
//	if errors.IsFatal(err) { ... }
//
//	var budget *errors.BudgetExceededError
//	if errors.As(err, &budget) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for recoverable problems.
	SeverityWarning
	// SeverityError is for errors that end a phase or an operation.
	SeverityError
	// SeverityCritical is for errors that abort a run.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyOutput indicates the backend answered but produced no usable file blocks.
	ErrEmptyOutput = New("generation produced no files")
	// ErrTimeout indicates the run's wall-clock budget was exhausted.
	ErrTimeout = New("run timed out")
	// ErrBudgetExceeded indicates an iteration budget was exhausted.
	ErrBudgetExceeded = New("iteration budget exceeded")
	// ErrCanceled indicates the caller canceled the run.
	ErrCanceled = New("run canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// Backend sentinel errors
var (
	// ErrNoServers indicates a router was built without any servers.
	ErrNoServers = New("no generation servers configured")
	// ErrUnknownServer indicates a server name that is not configured.
	ErrUnknownServer = New("unknown generation server")
	// ErrNotInitialized indicates a backend client was used before it was created.
	ErrNotInitialized = New("backend client not initialized")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// HorizonError is implemented by every typed error in this package.
type HorizonError interface {
	error
	Unwrap() error
	Severity() Severity
	// IsRetryable reports whether the failing step may succeed when attempted again.
	IsRetryable() bool
	// IsFatal reports whether the error must abort the entire run.
	IsFatal() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
	fatal     bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error        { return e.cause }
func (e *baseError) Severity() Severity   { return e.severity }
func (e *baseError) IsRetryable() bool    { return e.retryable }
func (e *baseError) IsFatal() bool        { return e.fatal }
func (e *baseError) is(target error) bool { return e.cause != nil && errors.Is(e.cause, target) }

// -----------------------------------------------------------------------------
// Engine Errors
// -----------------------------------------------------------------------------

// GenerationError reports a failed or empty generation backend call.
//
// Example:
//
//	err := errors.NewGenerationError("features", 3, errors.ErrEmptyOutput)
//	fmt.Println(err) // "generation error [phase=features, iteration=3]: generation produced no files"
type GenerationError struct {
	baseError
	Phase     string
	Iteration int
	Server    string
}

// NewGenerationError creates a GenerationError. Generation failures are retryable.
func NewGenerationError(phase string, iteration int, cause error) *GenerationError {
	msg := "backend call failed"
	if errors.Is(cause, ErrEmptyOutput) {
		msg = ""
	}
	return &GenerationError{
		baseError: baseError{
			message:   msg,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
		Phase:     phase,
		Iteration: iteration,
	}
}

// WithServer records which backend server handled the call.
func (e *GenerationError) WithServer(server string) *GenerationError {
	e.Server = server
	return e
}

// Error returns the formatted error message.
func (e *GenerationError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, "phase="+e.Phase)
	}
	if e.Iteration > 0 {
		parts = append(parts, fmt.Sprintf("iteration=%d", e.Iteration))
	}
	if e.Server != "" {
		parts = append(parts, "server="+e.Server)
	}
	prefix := "generation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("generation error [%s]", strings.Join(parts, ", "))
	}
	switch {
	case e.message != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.message)
	}
}

// Is reports whether target matches this error or its cause.
func (e *GenerationError) Is(target error) bool {
	if _, ok := target.(*GenerationError); ok {
		return true
	}
	return e.is(target)
}

// ParseError reports a malformed or rejected file block in generator output.
type ParseError struct {
	baseError
	Path string
}

// NewParseError creates a ParseError for the block at path.
func NewParseError(path, reason string) *ParseError {
	return &ParseError{
		baseError: baseError{
			message:  reason,
			severity: SeverityWarning,
		},
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse error [path=%s]: %s", e.Path, e.message)
	}
	return "parse error: " + e.message
}

// Is reports whether target is a ParseError.
func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok
}

// CritiqueParseError reports a critique verdict that could not be decoded.
type CritiqueParseError struct {
	baseError
	Preview string
}

// NewCritiqueParseError creates a CritiqueParseError. The preview is bounded to
// keep log lines short.
func NewCritiqueParseError(raw string, cause error) *CritiqueParseError {
	preview := strings.TrimSpace(raw)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return &CritiqueParseError{
		baseError: baseError{
			message:  "invalid critique verdict",
			cause:    cause,
			severity: SeverityWarning,
		},
		Preview: preview,
	}
}

// Error returns the formatted error message.
func (e *CritiqueParseError) Error() string {
	base := "critique parse error: " + e.baseError.Error()
	if e.Preview != "" {
		return fmt.Sprintf("%s (content preview: %q)", base, e.Preview)
	}
	return base
}

// Is reports whether target matches this error or its cause.
func (e *CritiqueParseError) Is(target error) bool {
	if _, ok := target.(*CritiqueParseError); ok {
		return true
	}
	return e.is(target)
}

// BudgetExceededError reports an exhausted iteration cap.
//
// Example:
//
//	err := errors.NewBudgetExceededError("max_total_iterations", 20, 20).WithPhase("integration")
//	fmt.Println(err) // "budget exceeded [phase=integration]: max_total_iterations (20/20)"
type BudgetExceededError struct {
	baseError
	Limit string
	Used  int
	Max   int
	Phase string
}

// NewBudgetExceededError creates a BudgetExceededError for the named limit.
func NewBudgetExceededError(limit string, used, max int) *BudgetExceededError {
	return &BudgetExceededError{
		baseError: baseError{
			message:  limit,
			severity: SeverityError,
		},
		Limit: limit,
		Used:  used,
		Max:   max,
	}
}

// WithPhase records the phase that hit the budget.
func (e *BudgetExceededError) WithPhase(phase string) *BudgetExceededError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *BudgetExceededError) Error() string {
	prefix := "budget exceeded"
	if e.Phase != "" {
		prefix = fmt.Sprintf("budget exceeded [phase=%s]", e.Phase)
	}
	return fmt.Sprintf("%s: %s (%d/%d)", prefix, e.Limit, e.Used, e.Max)
}

// Is reports whether target is a BudgetExceededError or ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	if _, ok := target.(*BudgetExceededError); ok {
		return true
	}
	return target == ErrBudgetExceeded
}

// TimeoutError reports that the run exceeded its wall-clock limit. It is fatal.
//
// Example:
//
//	err := errors.NewTimeoutError(31*time.Minute, 30*time.Minute)
//	fmt.Println(err) // "timeout error: elapsed 31m0s exceeds limit 30m0s"
type TimeoutError struct {
	baseError
	Elapsed time.Duration
	Limit   time.Duration
	Phase   string
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(elapsed, limit time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:  "run timed out",
			severity: SeverityCritical,
			fatal:    true,
		},
		Elapsed: elapsed,
		Limit:   limit,
	}
}

// WithPhase records the phase that was running when the deadline passed.
func (e *TimeoutError) WithPhase(phase string) *TimeoutError {
	e.Phase = phase
	return e
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	prefix := "timeout error"
	if e.Phase != "" {
		prefix = fmt.Sprintf("timeout error [phase=%s]", e.Phase)
	}
	base := fmt.Sprintf("%s: elapsed %s exceeds limit %s", prefix, e.Elapsed.Round(time.Millisecond), e.Limit)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is reports whether target is a TimeoutError or ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.is(target)
}

// RepoContextError reports a failed repository context fetch. It is fatal.
type RepoContextError struct {
	baseError
	Root string
}

// NewRepoContextError creates a RepoContextError.
func NewRepoContextError(root string, cause error) *RepoContextError {
	return &RepoContextError{
		baseError: baseError{
			message:  "failed to load repository context",
			cause:    cause,
			severity: SeverityCritical,
			fatal:    true,
		},
		Root: root,
	}
}

// Error returns the formatted error message.
func (e *RepoContextError) Error() string {
	prefix := "repo context error"
	if e.Root != "" {
		prefix = fmt.Sprintf("repo context error [root=%s]", e.Root)
	}
	return fmt.Sprintf("%s: %s", prefix, e.baseError.Error())
}

// Is reports whether target matches this error or its cause.
func (e *RepoContextError) Is(target error) bool {
	if _, ok := target.(*RepoContextError); ok {
		return true
	}
	return e.is(target)
}

// ValidationError represents invalid configuration or input.
//
// Example:
//
//	err := errors.NewValidationError("title is required").WithField("title")
//	fmt.Println(err) // "validation error [field=title]: title is required"
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityError,
		},
	}
}

// WithField adds the field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is reports whether target is a ValidationError or ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var he HorizonError
	if As(err, &he) {
		return he.IsRetryable()
	}
	return false
}

// IsFatal returns true if the error must abort the whole run. Context
// deadline and cancellation errors are fatal because no further backend call
// could succeed under the same context.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var he HorizonError
	if As(err, &he) && he.IsFatal() {
		return true
	}
	return Is(err, ErrTimeout) || Is(err, ErrCanceled)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement HorizonError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var he HorizonError
	if As(err, &he) {
		return he.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
