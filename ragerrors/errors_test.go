package ragerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Error(t *testing.T) {
	err := New(ValidationError, "bad input")
	assert.Equal(t, "ValidationError: bad input", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap_Error(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(StorageUnavailable, "put object", cause)
	assert.Equal(t, "StorageUnavailable: put object: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestAs_ExtractsThroughWrapping(t *testing.T) {
	cause := Wrap(IndexUnavailable, "search", errors.New("timeout"))
	wrapped := fmt.Errorf("outer context: %w", cause)

	found, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, IndexUnavailable, found.Kind)
}

func TestAs_NoRagError(t *testing.T) {
	_, ok := As(errors.New("plain error"))
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(New(NotFound, "document missing")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{StorageUnavailable, true},
		{EmbedUnavailable, true},
		{IndexUnavailable, true},
		{BusUnavailable, true},
		{ValidationError, false},
		{NotFound, false},
		{LLMTimeout, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Retryable(New(tc.kind, "x")), "kind %s", tc.kind)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		ValidationError:      http.StatusBadRequest,
		AuthError:            http.StatusUnauthorized,
		QuotaExceeded:        http.StatusTooManyRequests,
		PayloadTooLarge:      http.StatusRequestEntityTooLarge,
		NotFound:             http.StatusNotFound,
		StorageUnavailable:   http.StatusServiceUnavailable,
		RetrievalUnavailable: http.StatusServiceUnavailable,
		LLMUnavailable:       http.StatusServiceUnavailable,
		LLMTimeout:           http.StatusGatewayTimeout,
		ConfigError:          http.StatusInternalServerError,
		Kind("unknown"):      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind %s", kind)
	}
}
