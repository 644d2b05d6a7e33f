package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeInput     = "E100"
	CodeStore     = "E200"
	CodeUpstream  = "E300"
	CodeState     = "E400"
	CodeRateLimit = "E500"
	CodeDelivery  = "E600"
)

const defaultUserMessage = "Something went wrong. Please try again later."

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewInputError reports unparsable user input; the user is re-prompted.
func NewInputError(msg string, cause error) *AppError {
	return &AppError{
		Code:        CodeInput,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       cause,
	}
}

// NewStoreError reports a persistence failure.
func NewStoreError(op string, cause error) *AppError {
	return &AppError{
		Code:        CodeStore,
		Message:     fmt.Sprintf("store error: %s", op),
		UserMessage: "Temporary problem, please try again later.",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewUpstreamError reports a failure of an external API.
func NewUpstreamError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeUpstream,
		Message:     fmt.Sprintf("upstream error: %s", apiName),
		UserMessage: "The service is temporarily unavailable.",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This action is not possible right now.",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       nil,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewDeliveryError reports a rejected chat message.
func NewDeliveryError(userID string, cause error) *AppError {
	return &AppError{
		Code:      CodeDelivery,
		Message:   fmt.Sprintf("delivery to %s failed", userID),
		Severity:  SeverityLow,
		Retryable: false,
		cause:     cause,
	}
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return As(err, &appErr) && appErr != nil && appErr.Code == code
}
