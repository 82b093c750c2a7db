package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
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

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("no text could be extracted")
	ErrMalformedPolicy   = errors.New("malformed policy data")
	ErrUpstream          = errors.New("upstream service error")
	ErrNotConfigured     = errors.New("not configured")
)

// Error codes carried by AppError.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeEmptyDocument     = "EMPTY_DOCUMENT"
	CodeMalformedPolicy   = "MALFORMED_POLICY"
	CodeUpstream          = "UPSTREAM_ERROR"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL"
	CodeConfig            = "CONFIG_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf classifies err by its AppError code or, failing that, by the sentinel
// it wraps.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrEmptyDocument):
		return CodeEmptyDocument
	case errors.Is(err, ErrMalformedPolicy):
		return CodeMalformedPolicy
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrNotConfigured):
		return CodeUpstream
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return CodeInvalidInput
	}
	return CodeInternal
}

// HTTPStatus maps an error to the response status used by the HTTP API.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case CodeEmptyDocument, CodeMalformedPolicy:
		return http.StatusUnprocessableEntity
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// GRPCStatus converts err into a gRPC status error.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch CodeOf(err) {
	case CodeInvalidInput, CodeMalformedPolicy:
		return InvalidArgumentError(err.Error())
	case CodeTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case CodeUpstream:
		return status.Error(codes.Unavailable, err.Error())
	}
	return InternalError(err.Error())
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
