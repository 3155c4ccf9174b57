package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRequestBlocked is returned when the upstream rate limit is nearly exhausted.
	ErrRequestBlocked = errors.New("request blocked: upstream rate limit critical")
)

// Kind is the failure taxonomy surfaced to the viewer.
type Kind string

const (
	// KindTransport covers non-2xx statuses and requests that could not complete.
	KindTransport Kind = "transport"

	// KindMalformedPayload covers bodies that are not a JSON array (strict
	// mode only) or not JSON at all.
	KindMalformedPayload Kind = "malformed_payload"

	// KindRateLimited covers requests refused locally by the rate limit tracker.
	KindRateLimited Kind = "rate_limited"
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// FetchError is the typed failure of a fetch.
type FetchError struct {
	Kind       Kind
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface. The message is what the viewer shows.
func (e *FetchError) Error() string {
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// statusError builds the transport failure for a non-2xx response.
func statusError(status int) *FetchError {
	return &FetchError{
		Kind:       KindTransport,
		Class:      classifyStatus(status),
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d", status),
	}
}

// networkError builds the transport failure for a request that could not complete.
func networkError(err error) *FetchError {
	return &FetchError{
		Kind:    KindTransport,
		Class:   ErrorClassNetwork,
		Message: err.Error(),
		Err:     err,
	}
}

// AsFetchError converts any error returned by the client into a FetchError.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, ErrRequestBlocked) {
		return &FetchError{Kind: KindRateLimited, Message: err.Error(), Err: err}
	}
	return networkError(err)
}

// classifyStatus categorizes an HTTP status for observability and retries.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class is worth another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx will not change on retry
		return false
	}
}
