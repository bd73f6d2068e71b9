package featurehub

import (
	"fmt"
	"time"
)

// ErrorType categorises SDK-specific errors.
type ErrorType string

const (
	ErrorTypeInvalidConfig ErrorType = "invalid_config"
	ErrorTypeInvalidFlag   ErrorType = "invalid_strategy"
)

// SDKError is raised synchronously for configuration-time failures: empty
// edge URL, empty API keys, mixed client/server API key types, or an
// unrecognised conditional/field-type string in a rollout strategy payload.
// It is never used for transient I/O failures, which are logged and
// swallowed instead (see Repository.Notify and the edge services).
type SDKError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// NewSDKError builds an *SDKError, stamping the current time.
func NewSDKError(errType ErrorType, message string, cause error) *SDKError {
	return &SDKError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
