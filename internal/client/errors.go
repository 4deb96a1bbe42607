package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Codes produced on the client side. Server codes (VALIDATION_ERROR,
// NOT_FOUND, ...) pass through unchanged.
const (
	CodeTimeout     = "TIMEOUT"
	CodeCanceled    = "CANCELED"
	CodeNetwork     = "NETWORK_ERROR"
	CodeBadResponse = "BAD_RESPONSE"
	CodeUnavailable = "UNAVAILABLE"
	CodeNotFound    = "NOT_FOUND"
)

// APIError is what every transport returns on failure. Error() is the
// human-readable message suitable for display.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	switch e.Code {
	case CodeTimeout, CodeNetwork, CodeUnavailable:
		return true
	}
	return e.Status == http.StatusServiceUnavailable
}

// IsNotFound reports whether err is a server NOT_FOUND.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeNotFound
}

// transportError converts an http.Client failure. A caller that gave up is
// not a network fault and is reported as CANCELED.
func transportError(err error) *APIError {
	if errors.Is(err, context.Canceled) {
		return &APIError{Code: CodeCanceled, Message: "the request was canceled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Code: CodeTimeout, Message: "the request timed out", Err: err}
	}
	return &APIError{Code: CodeNetwork, Message: "could not reach the server", Err: err}
}

type restErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

// decodeRESTError builds an APIError from a non-2xx response body. Bodies
// that are not the JSON error shape still yield a usable message.
func decodeRESTError(status int, body []byte) *APIError {
	var parsed restErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == "" {
		return &APIError{
			Status:  status,
			Code:    codeForStatus(status),
			Message: fmt.Sprintf("request failed: %s", http.StatusText(status)),
		}
	}
	code := parsed.Code
	if code == "" {
		code = codeForStatus(status)
	}
	return &APIError{Status: status, Code: code, Message: parsed.Error, Field: parsed.Field}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeUnavailable
	default:
		return "INTERNAL_ERROR"
	}
}
