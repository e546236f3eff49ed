package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody represents the uniform failure payload returned by the API.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders a failure using the canonical {success:false, error, ...} shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{
		Success: false,
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// WriteError converts any error into a JSON failure response. AppErrors keep
// their status and details; anything else is reported as an internal error.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError(err)
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := appErr.Code
	if code == "" {
		code = string(appErr.Kind)
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
}
