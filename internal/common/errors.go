package common

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies an AppError for response mapping and metrics.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindConfiguration  Kind = "CONFIGURATION_ERROR"
	KindUpstreamAuth   Kind = "UPSTREAM_AUTH_ERROR"
	KindUpstreamAPI    Kind = "UPSTREAM_API_ERROR"
	KindResponseShape  Kind = "RESPONSE_SHAPE_ERROR"
	KindAuthentication Kind = "AUTHENTICATION_ERROR"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// AppError represents an error with an attached kind, code and HTTP status.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(kind Kind, message string, status int, err error) *AppError {
	return &AppError{Kind: kind, Code: string(kind), Message: message, HTTPStatus: status, Err: err}
}

// WithDetails attaches diagnostic details rendered in the response body.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCode overrides the response code, typically with one reported upstream.
func (e *AppError) WithCode(code string) *AppError {
	if code != "" {
		e.Code = code
	}
	return e
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var target *AppError
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}

func ValidationError(message string) *AppError {
	return NewAppError(KindValidation, message, http.StatusBadRequest, nil)
}

func ConfigurationError(err error) *AppError {
	msg := "server misconfiguration"
	if err != nil {
		msg = err.Error()
	}
	return NewAppError(KindConfiguration, msg, http.StatusInternalServerError, err)
}

func AuthenticationError(message string) *AppError {
	return NewAppError(KindAuthentication, message, http.StatusUnauthorized, nil)
}

func ResponseShapeError(message string, details any) *AppError {
	return NewAppError(KindResponseShape, message, http.StatusInternalServerError, nil).WithDetails(details)
}

// UpstreamAuthError reports a failed OAuth exchange. A zero status means the
// gateway never answered.
func UpstreamAuthError(message string, status int, err error) *AppError {
	return NewAppError(KindUpstreamAuth, message, upstreamStatus(status, err), err)
}

// UpstreamAPIError reports a failed payment API call, passing the upstream
// status through where one exists.
func UpstreamAPIError(message string, status int, err error) *AppError {
	return NewAppError(KindUpstreamAPI, message, upstreamStatus(status, err), err)
}

func InternalError(err error) *AppError {
	msg := "internal server error"
	if err != nil {
		msg = err.Error()
	}
	return NewAppError(KindInternal, msg, http.StatusInternalServerError, err)
}

func upstreamStatus(status int, err error) int {
	switch {
	case status >= 400:
		return status
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
