package pipeline

import (
	"errors"
	"fmt"
)

// ErrorType classifies a step failure
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeCancellation ErrorType = "cancellation"
)

// StepError is a failure attributed to one step
type StepError struct {
	Type    ErrorType `json:"type"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *StepError) Error() string {
	if e == nil {
		return "unknown step error"
	}
	msg := fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError reports a step whose inputs are missing
func NewValidationError(step, message string) *StepError {
	return &StepError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
	}
}

// NewExecutionError wraps a failure returned by a step
func NewExecutionError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: "step execution failed",
		Cause:   cause,
	}
}

// NewCancellationError reports a run cancelled before or during step
func NewCancellationError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "run was cancelled",
		Cause:   cause,
	}
}

// GetErrorType returns the type of err, execution for foreign errors
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var sErr *StepError
	if errors.As(err, &sErr) {
		return sErr.Type
	}
	return ErrorTypeExecution
}

// FailedStep returns the step an error is attributed to
func FailedStep(err error) string {
	var sErr *StepError
	if errors.As(err, &sErr) {
		return sErr.Step
	}
	return ""
}
