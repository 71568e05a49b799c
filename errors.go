package releasea

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind is the closed set of failure classes a Response can carry.
type ErrorKind string

const (
	KindAborted      ErrorKind = "aborted"
	KindTimeout      ErrorKind = "timeout"
	KindNetwork      ErrorKind = "network_error"
	KindParse        ErrorKind = "parse_error"
	KindContract     ErrorKind = "contract_error"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindRateLimited  ErrorKind = "rate_limited"
	KindServer       ErrorKind = "server_error"
	KindHTTP         ErrorKind = "http_error"
)

// Status codes used for failures that did not come from an HTTP response.
const (
	StatusNetworkError     = 0
	StatusTimeout          = http.StatusRequestTimeout
	StatusClientClosed     = 499
	StatusRequestContract  = http.StatusBadRequest
	StatusResponseContract = http.StatusBadGateway
)

// Sentinel errors, one per kind, usable with errors.Is against Response.Err().
var (
	ErrAborted      = errors.New("releasea: request aborted")
	ErrTimeout      = errors.New("releasea: request timed out")
	ErrNetwork      = errors.New("releasea: network error")
	ErrParse        = errors.New("releasea: malformed response body")
	ErrContract     = errors.New("releasea: contract violation")
	ErrUnauthorized = errors.New("releasea: unauthorized")
	ErrForbidden    = errors.New("releasea: forbidden")
	ErrNotFound     = errors.New("releasea: not found")
	ErrConflict     = errors.New("releasea: conflict")
	ErrRateLimited  = errors.New("releasea: rate limited")
	ErrServer       = errors.New("releasea: server error")
	ErrHTTP         = errors.New("releasea: http error")
)

var kindSentinels = map[ErrorKind]error{
	KindAborted:      ErrAborted,
	KindTimeout:      ErrTimeout,
	KindNetwork:      ErrNetwork,
	KindParse:        ErrParse,
	KindContract:     ErrContract,
	KindUnauthorized: ErrUnauthorized,
	KindForbidden:    ErrForbidden,
	KindNotFound:     ErrNotFound,
	KindConflict:     ErrConflict,
	KindRateLimited:  ErrRateLimited,
	KindServer:       ErrServer,
	KindHTTP:         ErrHTTP,
}

// Retryable reports whether failures of this kind may be retried by the
// retry engine. Unauthorized is recovered through session refresh instead.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// Sentinel returns the package-level error matching the kind.
func (k ErrorKind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return ErrHTTP
}

// KindForStatus maps a non-2xx HTTP status onto the taxonomy.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindHTTP
	}
}

// defaultMessage is used when a failed response carries no usable message.
func defaultMessage(status int) string {
	switch KindForStatus(status) {
	case KindUnauthorized:
		return "Authentication required"
	case KindForbidden:
		return "You do not have permission to perform this action"
	case KindNotFound:
		return "Resource not found"
	case KindTimeout:
		return "Request timed out"
	case KindConflict:
		return "The resource was modified by another request"
	case KindRateLimited:
		return "Too many requests, please slow down"
	case KindServer:
		return fmt.Sprintf("Server error (%d)", status)
	default:
		return fmt.Sprintf("Request failed with status %d", status)
	}
}

// ClientError is the structured error detail attached to every failed Response.
type ClientError struct {
	Code          ErrorKind
	Retryable     bool
	Message       string
	Status        int
	CorrelationID string
	Method        string
	Endpoint      string
	Attempt       int
	MaxAttempts   int
	Timestamp     time.Time
	Cause         error
}

func newClientError(kind ErrorKind, status int, message string, cause error) *ClientError {
	return &ClientError{
		Code:      kind,
		Retryable: kind.Retryable(),
		Message:   message,
		Status:    status,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.CorrelationID != "" {
		msg = fmt.Sprintf("[%s] %s", e.CorrelationID, msg)
	}
	if e.Attempt > 0 && e.MaxAttempts > 1 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches the kind sentinel or another ClientError with the same code.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Code == targetErr.Code
	}
	return target == e.Code.Sentinel()
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Code: %s\n", e.Code)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	info += fmt.Sprintf("Retryable: %t\n", e.Retryable)
	info += fmt.Sprintf("Status: %d\n", e.Status)
	if e.CorrelationID != "" {
		info += fmt.Sprintf("Correlation ID: %s\n", e.CorrelationID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient reports whether err is a ClientError whose kind is safe to retry.
func IsTransient(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return false
}
