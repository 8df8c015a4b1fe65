// Package apierr is the shared error model for every service package.
// Services return *APIError for anything a client can act on; handlers
// map the code to an HTTP status and render the standard error body.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeForbidden       Code = "FORBIDDEN"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError      { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError     { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError     { return &APIError{Code: CodeConflict, Message: msg} }
func ErrForbidden(msg string) *APIError    { return &APIError{Code: CodeForbidden, Message: msg} }
func ErrUnauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrInternal(msg string) *APIError     { return &APIError{Code: CodeInternal, Message: msg} }

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeForbidden:
			return http.StatusForbidden
		case CodeUnauthorized:
			return http.StatusUnauthorized
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

type errDTO struct {
	Error *APIError `json:"error"`
}

// Body builds the JSON error body. Unknown errors are wrapped as
// INTERNAL so raw driver messages never leak verbatim structure.
func Body(err error) any {
	var api *APIError
	if errors.As(err, &api) {
		return errDTO{Error: api}
	}
	return errDTO{Error: ErrInternal(err.Error())}
}
