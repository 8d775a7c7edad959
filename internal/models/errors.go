package models

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeInsufficientData  ErrorType = "insufficient_data"
	ErrorTypeArtifact          ErrorType = "artifact"
	ErrorTypeExternal          ErrorType = "external"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeTransientPublish  ErrorType = "transient_publish"
	ErrorTypePersistentPublish ErrorType = "persistent_publish"
	ErrorTypeInternal          ErrorType = "internal"
)

// AppError is the error shape every service boundary returns. Type drives
// routing decisions in the workflow engine, Code and Metadata drive logging.
type AppError struct {
	Type     ErrorType              `json:"type"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Cause    error                  `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy so predefined sentinel errors stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	clone := e.clone()
	clone.Cause = cause
	return clone
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	clone := e.clone()
	if clone.Metadata == nil {
		clone.Metadata = make(map[string]interface{})
	}
	clone.Metadata[key] = value
	return clone
}

func (e *AppError) clone() *AppError {
	metadata := make(map[string]interface{}, len(e.Metadata))
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	return &AppError{
		Type:     e.Type,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    e.Cause,
		Metadata: metadata,
	}
}

func newAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

func NewValidationError(code, message string) *AppError {
	return newAppError(ErrorTypeValidation, code, message)
}

func NewInsufficientDataError(code, message string) *AppError {
	return newAppError(ErrorTypeInsufficientData, code, message)
}

func NewArtifactError(code, message string) *AppError {
	return newAppError(ErrorTypeArtifact, code, message)
}

func NewExternalError(code, message string) *AppError {
	return newAppError(ErrorTypeExternal, code, message)
}

func NewTimeoutError(code, message string) *AppError {
	return newAppError(ErrorTypeTimeout, code, message)
}

func NewTransientPublishError(code, message string) *AppError {
	return newAppError(ErrorTypeTransientPublish, code, message)
}

func NewPersistentPublishError(code, message string) *AppError {
	return newAppError(ErrorTypePersistentPublish, code, message)
}

func NewInternalError(code, message string) *AppError {
	return newAppError(ErrorTypeInternal, code, message)
}

func WrapExternalError(service string, err error) *AppError {
	code := strings.ToUpper(service) + "_ERROR"
	return NewExternalError(code, fmt.Sprintf("%s request failed", service)).WithCause(err)
}

var ErrWorkflowNotFound = NewValidationError("WORKFLOW_NOT_FOUND", "workflow not found")

var ErrForecastNotCached = NewValidationError("FORECAST_NOT_CACHED", "no cached forecast for mode")

// TypeOf unwraps err down to its AppError type. Plain errors report as internal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

func IsInsufficientData(err error) bool {
	return IsErrorType(err, ErrorTypeInsufficientData)
}

func IsTransientPublish(err error) bool {
	return IsErrorType(err, ErrorTypeTransientPublish)
}

func IsPersistentPublish(err error) bool {
	return IsErrorType(err, ErrorTypePersistentPublish)
}

func IsPublishFailure(err error) bool {
	return IsTransientPublish(err) || IsPersistentPublish(err)
}

// UserMessage maps an error to the text persisted for the user. Insufficient
// data keeps its exact message, everything else collapses to a generic failure.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrorTypeInsufficientData:
			return appErr.Message
		case ErrorTypeValidation:
			return "Your request is missing required information. Please resend it with a user id and a question."
		}
	}
	return "Sorry, something went wrong while preparing your rainfall forecast. Please try again in a few minutes."
}
