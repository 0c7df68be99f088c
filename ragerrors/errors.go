// Package ragerrors defines the error taxonomy shared across the ingest,
// retrieval, and answer paths so that callers can branch on error kind
// instead of matching on message text.
package ragerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the error taxonomy entries. Kinds are not Go
// types: every error kind is represented by *Error with a Kind field, so
// a single errors.As(&ragerrors.Error{}) covers the whole taxonomy.
type Kind string

const (
	ValidationError      Kind = "ValidationError"
	AuthError            Kind = "AuthError"
	QuotaExceeded        Kind = "QuotaExceeded"
	PayloadTooLarge      Kind = "PayloadTooLarge"
	StorageUnavailable   Kind = "StorageUnavailable"
	NotFound             Kind = "NotFound"
	ParseFailed          Kind = "ParseFailed"
	EmbedUnavailable     Kind = "EmbedUnavailable"
	IndexUnavailable     Kind = "IndexUnavailable"
	RetrievalUnavailable Kind = "RetrievalUnavailable"
	LLMUnavailable       Kind = "LLMUnavailable"
	LLMTimeout           Kind = "LLMTimeout"
	BusUnavailable       Kind = "BusUnavailable"
	ConfigError          Kind = "ConfigError"
)

// Error is the concrete error type carried through the system. Wrap an
// underlying cause with Wrap so %w unwrapping keeps working.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// As extracts the *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the Job Runner should requeue on this error
// per the taxonomy's retry policy (spec §7).
func Retryable(err error) bool {
	switch KindOf(err) {
	case StorageUnavailable, EmbedUnavailable, IndexUnavailable, BusUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code the HTTP facade returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case ValidationError:
		return http.StatusBadRequest
	case AuthError:
		return http.StatusUnauthorized
	case QuotaExceeded:
		return http.StatusTooManyRequests
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case NotFound:
		return http.StatusNotFound
	case StorageUnavailable, IndexUnavailable, RetrievalUnavailable, LLMUnavailable:
		return http.StatusServiceUnavailable
	case LLMTimeout:
		return http.StatusGatewayTimeout
	case ConfigError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
