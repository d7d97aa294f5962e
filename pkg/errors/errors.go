package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeResolution represents redirect-following failures
	ErrorTypeResolution ErrorType = "resolution"
	// ErrorTypeNetwork represents network-related errors (transport, non-2xx, timeout)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypePlausibility represents a parsed page without a usable title or price
	ErrorTypePlausibility ErrorType = "plausibility"
	// ErrorTypeConversion represents affiliate conversion errors
	ErrorTypeConversion ErrorType = "conversion"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError represents an error raised somewhere in the link pipeline
type PipelineError struct {
	Type     ErrorType
	Platform string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Platform, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *PipelineError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeParsing, ErrorTypePlausibility:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable PipelineError.
// Errors outside the taxonomy are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return true
}

// TypeOf returns the ErrorType carried by err, or "" when err is not a PipelineError.
func TypeOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

// New creates a new PipelineError
func New(errType ErrorType, platform, message string, err error) *PipelineError {
	return &PipelineError{
		Type:     errType,
		Platform: platform,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewResolution creates a new resolution error
func NewResolution(message string, err error) *PipelineError {
	return New(ErrorTypeResolution, "", message, err)
}

// NewNetwork creates a new network error
func NewNetwork(platform, message string, err error) *PipelineError {
	return New(ErrorTypeNetwork, platform, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(platform, message string, err error) *PipelineError {
	return New(ErrorTypeParsing, platform, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(platform string, duration time.Duration) *PipelineError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, platform, message, nil)
}

// NewPlausibility creates a new plausibility error
func NewPlausibility(platform, message string) *PipelineError {
	return New(ErrorTypePlausibility, platform, message, nil)
}

// NewConversion creates a new conversion error
func NewConversion(network, message string, err error) *PipelineError {
	return New(ErrorTypeConversion, network, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(message string, err error) *PipelineError {
	return New(ErrorTypePublisher, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "", message, err)
}
