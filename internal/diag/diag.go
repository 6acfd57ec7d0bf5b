// Package diag defines the structured error taxonomy shared by the judge
// client, the session store, and the audit engine, plus the error envelope
// returned to the outer transport.
package diag

import (
	"errors"
	"fmt"
	"time"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// Category classifies where an error came from and how it should be handled.
type Category string

const (
	CategoryConfig            Category = "config"
	CategoryCodexNotAvailable Category = "codex_not_available"
	CategoryCodexTimeout      Category = "codex_timeout"
	CategoryCodexResponse     Category = "codex_response"
	CategoryCodexTransient    Category = "codex_transient"
	CategoryCodexFatal        Category = "codex_fatal"
	CategoryFilesystem        Category = "filesystem"
	CategorySessionCorruption Category = "session_corruption"
	CategoryBusy              Category = "busy"
	CategoryInternal          Category = "internal"
)

// Severity grades how bad an error is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Strategy names the default recovery action for an error category.
type Strategy string

const (
	StrategyRetry            Strategy = "retry"
	StrategyFallback         Strategy = "fallback"
	StrategySkip             Strategy = "skip"
	StrategyAbort            Strategy = "abort"
	StrategyUserIntervention Strategy = "user_intervention"
)

// Error is a categorized error carrying recovery guidance.
type Error struct {
	Category    Category
	Severity    Severity
	Message     string
	Recoverable bool
	Strategy    Strategy
	Suggestions []string
	// RetryAfter, when non-zero, hints how long a caller should wait
	// before retrying (busy / transient categories).
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a diagnostic error with the defaults for its category.
func New(category Category, message string) *Error {
	e := &Error{Category: category, Message: message}
	applyCategoryDefaults(e)
	return e
}

// Wrap builds a diagnostic error around a cause.
func Wrap(category Category, message string, cause error) *Error {
	e := New(category, message)
	e.cause = cause
	return e
}

// WithSuggestions attaches recovery suggestions and returns the error.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithRetryAfter attaches a retry-after hint and returns the error.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// applyCategoryDefaults fills severity, recoverability, and strategy from
// the taxonomy table.
func applyCategoryDefaults(e *Error) {
	switch e.Category {
	case CategoryConfig:
		e.Severity, e.Recoverable, e.Strategy = SeverityWarning, true, StrategyFallback
	case CategoryCodexNotAvailable:
		e.Severity, e.Recoverable, e.Strategy = SeverityCritical, false, StrategyAbort
	case CategoryCodexTimeout:
		e.Severity, e.Recoverable, e.Strategy = SeverityError, true, StrategyRetry
	case CategoryCodexResponse:
		e.Severity, e.Recoverable, e.Strategy = SeverityError, true, StrategyRetry
	case CategoryCodexTransient:
		e.Severity, e.Recoverable, e.Strategy = SeverityError, true, StrategyRetry
	case CategoryCodexFatal:
		e.Severity, e.Recoverable, e.Strategy = SeverityError, false, StrategyAbort
	case CategoryFilesystem:
		e.Severity, e.Recoverable, e.Strategy = SeverityError, true, StrategyRetry
	case CategorySessionCorruption:
		e.Severity, e.Recoverable, e.Strategy = SeverityWarning, true, StrategyFallback
	case CategoryBusy:
		e.Severity, e.Recoverable, e.Strategy = SeverityWarning, true, StrategyRetry
	default:
		e.Category = CategoryInternal
		e.Severity, e.Recoverable, e.Strategy = SeverityCritical, false, StrategyAbort
	}
}

// AsError extracts a *Error from err, wrapping unknown errors as internal.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return Wrap(CategoryInternal, "unexpected error", err)
}

// Diagnostic is the wire form of an Error inside the envelope.
type Diagnostic struct {
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Suggestions []string  `json:"suggestions"`
	Timestamp   time.Time `json:"timestamp"`
}

// RetryInfo tells the caller whether and when to retry.
type RetryInfo struct {
	CanRetry     bool  `json:"canRetry"`
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`
	MaxRetries   int   `json:"maxRetries,omitempty"`
}

// Envelope is the structured error response returned to the outer transport.
type Envelope struct {
	IsError     bool                   `json:"isError"`
	Error       string                 `json:"error"`
	Diagnostic  Diagnostic             `json:"diagnostic"`
	StatusCode  int                    `json:"statusCode"`
	Recoverable bool                   `json:"recoverable"`
	RetryInfo   *RetryInfo             `json:"retryInfo,omitempty"`
	// FallbackData carries the session's last-known verdict, when one
	// exists, so the caller can still make progress after a failure.
	FallbackData *gantypes.JudgeVerdict `json:"fallback_data,omitempty"`
}

// Envelope renders the error into the transport envelope.
func (e *Error) Envelope(fallback *gantypes.JudgeVerdict) Envelope {
	env := Envelope{
		IsError: true,
		Error:   e.Message,
		Diagnostic: Diagnostic{
			Category:    e.Category,
			Severity:    e.Severity,
			Message:     e.Error(),
			Suggestions: e.Suggestions,
			Timestamp:   time.Now().UTC(),
		},
		StatusCode:   statusCode(e.Category),
		Recoverable:  e.Recoverable,
		FallbackData: fallback,
	}
	if e.Recoverable {
		env.RetryInfo = &RetryInfo{CanRetry: true}
		if e.RetryAfter > 0 {
			env.RetryInfo.RetryAfterMs = e.RetryAfter.Milliseconds()
		}
	}
	return env
}

func statusCode(c Category) int {
	switch c {
	case CategoryConfig:
		return 400
	case CategoryBusy:
		return 429
	case CategoryCodexTimeout:
		return 504
	case CategoryCodexNotAvailable:
		return 503
	default:
		return 500
	}
}
