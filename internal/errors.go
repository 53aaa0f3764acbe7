package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound          ErrorType = "NOT_FOUND"
	ErrorTypeConflict          ErrorType = "CONFLICT"
	ErrorTypeNoProvider        ErrorType = "NO_ELIGIBLE_PROVIDER"
	ErrorTypeProviderTransient ErrorType = "PROVIDER_TRANSIENT"
	ErrorTypeProviderRejected  ErrorType = "PROVIDER_REJECTED"
	ErrorTypeRetriesExhausted  ErrorType = "RETRIES_EXHAUSTED"
	ErrorTypeInternal          ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency   ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidMethod     ErrorCode = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidMobile     ErrorCode = "INVALID_MOBILE_NUMBER"
	ErrCodeUnsupportedMethod ErrorCode = "UNSUPPORTED_PAYMENT_METHOD"

	ErrCodePaymentNotFound      ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeBatchNotFound        ErrorCode = "BATCH_NOT_FOUND"
	ErrCodeProviderNotFound     ErrorCode = "PROVIDER_NOT_FOUND"
	ErrCodeInvalidPaymentStatus ErrorCode = "INVALID_PAYMENT_STATUS"
	ErrCodeInvalidBatchStatus   ErrorCode = "INVALID_BATCH_STATUS"

	ErrCodeNoEligibleProvider ErrorCode = "NO_ELIGIBLE_PROVIDER"
	ErrCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeProviderRejected   ErrorCode = "PROVIDER_REJECTED"
	ErrCodeVersionConflict    ErrorCode = "VERSION_CONFLICT"
	ErrCodeRetriesExhausted   ErrorCode = "MAX_RETRIES_EXCEEDED"
	ErrCodeCannotCancel       ErrorCode = "CANNOT_CANCEL"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Retryable reports whether the error kind permits another attempt through
// the normal selection path.
func (e *AppError) Retryable() bool {
	switch e.Type {
	case ErrorTypeNoProvider, ErrorTypeProviderTransient, ErrorTypeConflict:
		return true
	}
	return false
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewNoProviderError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNoProvider,
		Code:       ErrCodeNoEligibleProvider,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewProviderTransientError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProviderTransient,
		Code:       ErrCodeProviderTimeout,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewProviderRejectedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeProviderRejected,
		Code:       ErrCodeProviderRejected,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewRetriesExhaustedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRetriesExhausted,
		Code:       ErrCodeRetriesExhausted,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrPaymentNotFound  = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrBatchNotFound    = NewNotFoundError("Payment batch not found", ErrCodeBatchNotFound)
	ErrProviderNotFound = NewNotFoundError("Provider configuration not found", ErrCodeProviderNotFound)

	ErrVersionConflict = NewConflictError("entity was modified concurrently", ErrCodeVersionConflict)

	ErrInvalidPaymentStatus = NewValidationError("invalid payment status for this operation", ErrCodeInvalidPaymentStatus)
	ErrInvalidBatchStatus   = NewValidationError("invalid batch status for this operation", ErrCodeInvalidBatchStatus)
	ErrCannotCancel         = NewValidationError("payment is already terminal and cannot be cancelled", ErrCodeCannotCancel)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
