package releasea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Headers sent by the client.
const (
	HeaderCorrelationID  = "X-Correlation-ID"
	HeaderCSRFToken      = "X-CSRF-Token"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestedWith  = "X-Requested-With"
)

var errAttemptTimeout = errors.New("attempt timeout elapsed")

// attempt is a fully prepared physical request. Headers are derived from it
// at send time, never cached, so a replay always carries the current token.
type attempt struct {
	method         string
	endpoint       string
	body           []byte
	contentType    string
	header         http.Header
	csrfToken      string
	idempotencyKey string
	timeout        time.Duration
	responseSchema Validator
}

// encodeBody serializes a request body once so every retry sends the same
// bytes. Only values without a natural encoding are sent as JSON.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	case []byte:
		return b, "application/octet-stream", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	case Payload:
		return b.Data, b.ContentType, nil
	case *Payload:
		if b == nil {
			return nil, "", nil
		}
		return b.Data, b.ContentType, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("read request body: %w", err)
		}
		return data, "application/octet-stream", nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return data, "application/json", nil
}

func (c *Client) url(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + c.apiPrefix + endpoint
}

// roundTrip performs exactly one physical HTTP call and normalizes whatever
// happens into a Response. It also returns the bearer token the call was
// sent with.
func (c *Client) roundTrip(ctx context.Context, a *attempt) (*Response, string) {
	correlationID := c.newCorrelationID()

	timeout := a.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	attemptCtx, cancel := context.WithTimeoutCause(ctx, timeout, errAttemptTimeout)
	defer cancel()

	var body io.Reader
	if a.body != nil {
		body = bytes.NewReader(a.body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, a.method, c.url(a.endpoint), body)
	if err != nil {
		return failure(newClientError(KindHTTP, StatusRequestContract, "Invalid request", err), correlationID), ""
	}

	token := c.session.Token()
	c.buildHeaders(req, a, correlationID, token)

	c.logDebug("Sending request", "method", a.method, "endpoint", a.endpoint, "correlationID", correlationID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return failure(classifyTransportError(ctx, attemptCtx, err), correlationID), token
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return failure(classifyTransportError(ctx, attemptCtx, err), correlationID), token
	}

	resp := c.normalize(httpResp, raw, a, correlationID)
	c.logDebug("Request finished", "method", a.method, "endpoint", a.endpoint, "correlationID", correlationID,
		"status", resp.Status, "duration", time.Since(start))
	return resp, token
}

func (c *Client) buildHeaders(req *http.Request, a *attempt, correlationID, token string) {
	h := req.Header
	h.Set("Accept", "application/json")
	h.Set(HeaderRequestedWith, "XMLHttpRequest")
	h.Set("User-Agent", userAgent())
	if a.contentType != "" {
		h.Set("Content-Type", a.contentType)
	}
	for key, values := range a.header {
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}

	h.Set(HeaderCorrelationID, correlationID)
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	if a.csrfToken != "" {
		h.Set(HeaderCSRFToken, a.csrfToken)
	}
	if a.idempotencyKey != "" {
		h.Set(HeaderIdempotencyKey, a.idempotencyKey)
	}
}

// classifyTransportError tells caller cancellation, attempt timeout and plain
// network failure apart. Caller cancellation wins when both fired.
func classifyTransportError(ctx, attemptCtx context.Context, err error) *ClientError {
	switch {
	case ctx.Err() != nil:
		return newClientError(KindAborted, StatusClientClosed, "Request was cancelled", context.Cause(ctx))
	case errors.Is(context.Cause(attemptCtx), errAttemptTimeout):
		return newClientError(KindTimeout, StatusTimeout, "Request timed out", err)
	default:
		return newClientError(KindNetwork, StatusNetworkError, "Network error, please check your connection", err)
	}
}

func (c *Client) normalize(httpResp *http.Response, raw []byte, a *attempt, correlationID string) *Response {
	status := httpResp.StatusCode
	data, isJSON, parseErr := parseBody(status, httpResp.Header.Get("Content-Type"), raw)

	if status < 200 || status > 299 {
		resp := failure(newClientError(KindForStatus(status), status, extractMessage(data, status), nil), correlationID)
		resp.Header = httpResp.Header
		return resp
	}

	if parseErr != nil {
		if c.strictParsing {
			resp := failure(newClientError(KindParse, StatusResponseContract, "Response body is not valid JSON", parseErr), correlationID)
			resp.Header = httpResp.Header
			return resp
		}
		c.logWarn("Discarding malformed JSON response body", "endpoint", a.endpoint, "correlationID", correlationID, "error", parseErr.Error())
	}

	resp := &Response{
		Data:          data,
		Status:        status,
		CorrelationID: correlationID,
		Header:        httpResp.Header,
	}
	if isJSON && data != nil {
		resp.raw = raw
	}

	if a.responseSchema != nil {
		validated, violation := checkContract(a.responseSchema, data)
		if violation != nil {
			c.logWarn("Response contract violation", "endpoint", a.endpoint, "correlationID", correlationID, "error", violation.Error())
			failed := failure(newClientError(KindContract, StatusResponseContract, "Response did not match the expected contract", violation), correlationID)
			failed.Header = httpResp.Header
			return failed
		}
		resp.Data = validated
		resp.raw = nil
	}
	return resp
}

// parseBody decodes a response body. Malformed JSON yields nil data plus the
// parse error so the caller can decide how lenient to be.
func parseBody(status int, contentType string, raw []byte) (data any, isJSON bool, err error) {
	if status == http.StatusNoContent || status == http.StatusResetContent {
		return nil, false, nil
	}
	if isJSONContentType(contentType) {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, true, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, true, err
		}
		return v, true, nil
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	return string(raw), false, nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// extractMessage picks the conventional message field of an error body.
func extractMessage(data any, status int) string {
	switch v := data.(type) {
	case map[string]any:
		for _, field := range []string{"message", "error", "detail"} {
			switch m := v[field].(type) {
			case string:
				if strings.TrimSpace(m) != "" {
					return m
				}
			case map[string]any:
				if nested, ok := m["message"].(string); ok && nested != "" {
					return nested
				}
			}
		}
	case string:
		if text := strings.TrimSpace(v); text != "" && len(text) <= 512 {
			return text
		}
	}
	return defaultMessage(status)
}
