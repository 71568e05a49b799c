package releasea

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RetryConfig overrides the client's retry policy for a single call. Zero fields
// keep the client default.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Request describes one logical call. It is not modified by the client and is
// reused unchanged by every retry and replay.
type Request struct {
	Method   string
	Endpoint string
	Body     any
	Header   http.Header

	// Timeout bounds each physical attempt. Zero uses the client timeout.
	Timeout time.Duration
	Retry   *RetryConfig

	// Idempotent marks a mutation as safe to retry. It only takes effect
	// together with an idempotency key.
	Idempotent     bool
	IdempotencyKey string

	RequestSchema  Validator
	ResponseSchema Validator

	// RequireCSRF overrides the method/endpoint based CSRF decision.
	RequireCSRF *bool
}

// CallOption customizes a Request built by the verb helpers.
type CallOption func(*Request)

// CallTimeout sets the per-attempt timeout.
func CallTimeout(d time.Duration) CallOption {
	return func(r *Request) {
		r.Timeout = d
	}
}

// CallRetry overrides the retry policy for this call.
func CallRetry(cfg RetryConfig) CallOption {
	return func(r *Request) {
		r.Retry = &cfg
	}
}

// Idempotent marks the call as safe to retry when an idempotency key is present.
func Idempotent() CallOption {
	return func(r *Request) {
		r.Idempotent = true
	}
}

// IdempotencyKey sends key verbatim as the Idempotency-Key header.
func IdempotencyKey(key string) CallOption {
	return func(r *Request) {
		r.IdempotencyKey = key
	}
}

// RequestSchema validates the outbound body before anything is sent.
func RequestSchema(v Validator) CallOption {
	return func(r *Request) {
		r.RequestSchema = v
	}
}

// ResponseSchema validates the parsed body of a successful response.
func ResponseSchema(v Validator) CallOption {
	return func(r *Request) {
		r.ResponseSchema = v
	}
}

// RequireCSRF forces CSRF protection on or off for this call.
func RequireCSRF(required bool) CallOption {
	return func(r *Request) {
		r.RequireCSRF = &required
	}
}

// CallHeader adds a custom header.
func CallHeader(key, value string) CallOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Add(key, value)
	}
}

// Body sets the request body, for verbs whose helper does not take one.
func Body(body any) CallOption {
	return func(r *Request) {
		r.Body = body
	}
}

// Payload is a pre-encoded body sent with its own content type, the
// equivalent of a browser Blob or FormData body.
type Payload struct {
	ContentType string
	Data        []byte
}

// User is the authenticated-user snapshot returned by auth endpoints.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Role  string   `json:"role,omitempty"`
	Teams []string `json:"teams,omitempty"`
}

// Response is the normalized result of a logical call. On success ErrorDetails
// is nil; on failure Data is nil and Error holds a human-readable message.
type Response struct {
	Data          any
	Status        int
	CorrelationID string
	Error         string
	ErrorDetails  *ClientError
	Header        http.Header

	// raw is the JSON body Data was decoded from; nil once a schema replaced Data.
	raw []byte
}

// OK reports whether the call succeeded.
func (r *Response) OK() bool {
	return r != nil && r.ErrorDetails == nil
}

// Err returns the failure as an error, or nil on success.
func (r *Response) Err() error {
	if r == nil || r.ErrorDetails == nil {
		return nil
	}
	return r.ErrorDetails
}

// Decode unmarshals the successful response body into v. When a response
// schema produced a typed value it is re-encoded, so v sees the validated form.
func (r *Response) Decode(v any) error {
	if r == nil {
		return fmt.Errorf("releasea: nil response")
	}
	if err := r.Err(); err != nil {
		return err
	}
	if r.raw != nil {
		return json.Unmarshal(r.raw, v)
	}
	if r.Data == nil {
		return fmt.Errorf("releasea: response has no body")
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("releasea: re-encode response data: %w", err)
	}
	return json.Unmarshal(data, v)
}

// Decode is the generic form of Response.Decode.
func Decode[T any](r *Response) (T, error) {
	var v T
	if r != nil {
		if typed, ok := r.Data.(T); ok && r.OK() {
			return typed, nil
		}
	}
	err := r.Decode(&v)
	return v, err
}

func failure(err *ClientError, correlationID string) *Response {
	if err.CorrelationID == "" {
		err.CorrelationID = correlationID
	}
	return &Response{
		Status:        err.Status,
		CorrelationID: correlationID,
		Error:         err.Message,
		ErrorDetails:  err,
	}
}
