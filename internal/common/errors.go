package common

import (
	"errors"
	"net/http"
)

// AppError carries the API error code and HTTP status for a failure.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Status returns HTTPStatus, or 500 when unset.
func (e *AppError) Status() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

// Body renders e in the canonical error shape, filling an unset code or message.
func (e *AppError) Body() ErrorBody {
	body := ErrorBody{Code: e.Code, Message: e.Message, Details: e.Details}
	if body.Code == "" {
		body.Code = "INTERNAL"
	}
	if body.Message == "" {
		body.Message = "internal error"
	}
	return body
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	ok := errors.As(err, &target)
	return target, ok
}
