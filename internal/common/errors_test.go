package common

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unsupported", fmt.Errorf("extract: %w", ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{"empty", fmt.Errorf("extract: %w", ErrEmptyDocument), http.StatusUnprocessableEntity},
		{"malformed", NewAppError(CodeMalformedPolicy, "benefitTable is not an array", ErrMalformedPolicy), http.StatusUnprocessableEntity},
		{"upstream", fmt.Errorf("parse: %w", ErrUpstream), http.StatusBadGateway},
		{"timeout", fmt.Errorf("parse: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestGRPCStatus(t *testing.T) {
	assert.Nil(t, GRPCStatus(nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(GRPCStatus(ErrMalformedPolicy)))
	assert.Equal(t, codes.Unavailable, status.Code(GRPCStatus(ErrUpstream)))
	assert.Equal(t, codes.Internal, status.Code(GRPCStatus(fmt.Errorf("boom"))))

	already := status.Error(codes.NotFound, "x")
	assert.Equal(t, already, GRPCStatus(already))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("stage: %w", NewAppError(CodeEmptyDocument, "no text", ErrEmptyDocument))
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Equal(t, CodeEmptyDocument, CodeOf(err))
	assert.Contains(t, err.Error(), "EMPTY_DOCUMENT: no text")
}
