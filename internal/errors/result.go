package errors

import (
	stderrors "errors"
	"fmt"
)

// Converter is implemented by domain errors that know their API representation.
type Converter interface {
	AsAPIError() *APIError
}

// From normalizes any error into an *APIError.
func From(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	var conv Converter
	if stderrors.As(err, &conv) {
		return conv.AsAPIError()
	}
	return InternalError(err.Error())
}

// Result is the tagged success/error value returned by actions that must not
// propagate errors past their boundary.
type Result[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Success: true, Data: v}
}

// Fail wraps an error. The zero value of T is kept as Data.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	return Result[T]{Success: false, Error: From(err)}
}

// FailWith wraps an error but keeps partial data for the caller to render.
func FailWith[T any](v T, err error) Result[T] {
	r := Fail[T](err)
	r.Data = v
	return r
}
