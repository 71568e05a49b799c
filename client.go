package releasea

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/releasea/releasea-console-sub001/internal/backoff"
	"github.com/releasea/releasea-console-sub001/internal/singleflight"
)

// Client is the single request pipeline for the console backend. It layers
// contract checks, idempotency keys, CSRF protection, bounded retries and
// session refresh around net/http. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiPrefix  string
	timeout    time.Duration

	retry   RetryConfig
	backoff backoff.Strategy
	limiter *rate.Limiter

	session       *Session
	csrf          *csrfManager
	csrfMinLength int
	refreshFlight singleflight.Group[bool]
	refreshSkew   time.Duration

	idempotency         *idempotencyKeys
	idempotentEndpoints []string
	idempotencyWindow   time.Duration

	strictParsing    bool
	metrics          *MetricsCollector
	logger           Logger
	newCorrelationID func() string

	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	client := &Client{
		httpClient:          &http.Client{Jar: jar},
		baseURL:             DefaultBaseURL,
		apiPrefix:           DefaultAPIPrefix,
		timeout:             DefaultTimeout,
		retry:               DefaultRetryConfig(),
		backoff:             backoff.NewExponentialJitter(),
		session:             nil,
		csrfMinLength:       DefaultCSRFMinLength,
		idempotentEndpoints: DefaultIdempotentEndpoints,
		idempotencyWindow:   DefaultIdempotencyWindow,
		newCorrelationID:    uuid.NewString,
	}

	for _, option := range options {
		option(client)
	}

	if client.session == nil {
		client.session = NewSession()
	}
	if client.httpClient.Jar == nil {
		client.httpClient.Jar = jar
	}
	client.baseURL = strings.TrimRight(client.baseURL, "/")
	client.apiPrefix = "/" + strings.Trim(client.apiPrefix, "/")
	if client.apiPrefix == "/" {
		client.apiPrefix = ""
	}
	client.csrf = &csrfManager{client: client, minLength: client.csrfMinLength}

	keys, err := newIdempotencyKeys(client.idempotentEndpoints, client.idempotencyWindow)
	if err != nil {
		client.validationError = err
		keys, _ = newIdempotencyKeys(nil, client.idempotencyWindow)
	}
	client.idempotency = keys

	if err := client.ValidateConfiguration(); err != nil && client.validationError == nil {
		client.validationError = err
	}

	return client
}

// Session exposes the client's session state.
func (c *Client) Session() *Session {
	return c.session
}

// SetToken stores the bearer token; "" clears the whole session.
func (c *Client) SetToken(token string) {
	c.session.SetToken(token)
}

// Token returns the held bearer token, or "".
func (c *Client) Token() string {
	return c.session.Token()
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodGet, endpoint, nil, opts)
}

// Head performs a HEAD request.
func (c *Client) Head(ctx context.Context, endpoint string, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodHead, endpoint, nil, opts)
}

// Options performs an OPTIONS request.
func (c *Client) Options(ctx context.Context, endpoint string, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodOptions, endpoint, nil, opts)
}

// Post performs a POST request. It is attempted once unless marked
// Idempotent with an idempotency key.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodPost, endpoint, body, opts)
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodPut, endpoint, body, opts)
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodPatch, endpoint, body, opts)
}

// Delete performs a DELETE request. Use Body for the rare DELETE with a payload.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...CallOption) *Response {
	return c.call(ctx, http.MethodDelete, endpoint, nil, opts)
}

func (c *Client) call(ctx context.Context, method, endpoint string, body any, opts []CallOption) *Response {
	req := &Request{Method: method, Endpoint: endpoint, Body: body}
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req)
}

// Do executes one logical call. Failures are returned inside the Response,
// never as panics; ctx cancels the call at any suspension point.
func (c *Client) Do(ctx context.Context, req *Request) *Response {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	method := strings.ToUpper(req.Method)
	label := metricEndpoint(req.Endpoint)

	c.metrics.RecordRequestStart(method, label)
	resp := c.execute(ctx, method, req, label)
	c.metrics.RecordRequestEnd(method, label)
	c.metrics.RecordRequest(method, label, resp.Status, time.Since(start))

	if resp.ErrorDetails != nil {
		resp.ErrorDetails.Method = method
		resp.ErrorDetails.Endpoint = req.Endpoint
		c.metrics.RecordError(string(resp.ErrorDetails.Code), method, label)
	}
	return resp
}

func (c *Client) execute(ctx context.Context, method string, req *Request, label string) *Response {
	if !isSupportedMethod(method) {
		return failure(newClientError(KindHTTP, http.StatusBadRequest, "Unsupported HTTP method "+req.Method, nil), "")
	}
	if err := ctx.Err(); err != nil {
		return aborted(context.Cause(ctx), "")
	}

	body, violation := checkContract(req.RequestSchema, req.Body)
	if violation != nil {
		c.logWarn("Request contract violation", "method", method, "endpoint", req.Endpoint, "error", violation.Error())
		return failure(newClientError(KindContract, StatusRequestContract, "Request body did not match the expected contract", violation), "")
	}
	data, contentType, err := encodeBody(body)
	if err != nil {
		return failure(newClientError(KindContract, StatusRequestContract, "Request body could not be encoded", err), "")
	}

	key, source := c.idempotency.resolve(method, req.Endpoint, body, req.IdempotencyKey)
	if source != "" {
		c.metrics.RecordIdempotencyKey(source)
		c.metrics.RecordIdempotencyCacheSize(c.idempotency.size())
	}

	policy := c.retryPolicy(req.Retry)
	attempts := maxAttempts(method, req.Idempotent, key, policy)
	protect := needsCSRF(method, req.Endpoint, req.RequireCSRF)

	a := &attempt{
		method:         method,
		endpoint:       req.Endpoint,
		body:           data,
		contentType:    contentType,
		header:         req.Header,
		idempotencyKey: key,
		timeout:        req.Timeout,
		responseSchema: req.ResponseSchema,
	}

	c.refreshIfExpiring(ctx, req.Endpoint)

	var last *Response
	for n := 1; n <= attempts; n++ {
		if protect {
			token := c.csrf.ensure(ctx)
			if token == "" {
				if ctx.Err() != nil {
					return aborted(context.Cause(ctx), "")
				}
				return failure(newClientError(KindForbidden, http.StatusForbidden,
					"Unable to obtain a CSRF token; the request was not sent", nil), "")
			}
			a.csrfToken = token
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return aborted(context.Cause(ctx), "")
				}
				return failure(newClientError(KindRateLimited, http.StatusTooManyRequests,
					"Client-side rate limit would outlast the request deadline", err), "")
			}
			c.metrics.RecordRateLimiterTokens(c.limiter.Tokens())
		}
		if n > 1 {
			c.metrics.RecordRetry(method, label, n)
		}

		last = c.send(ctx, a, true, label)
		if last.ErrorDetails != nil {
			last.ErrorDetails.Attempt = n
			last.ErrorDetails.MaxAttempts = attempts
		}
		if last.OK() || !last.ErrorDetails.Retryable || n == attempts {
			return last
		}

		delay := c.retryDelay(n, policy, last)
		c.logInfo("Scheduling retry", "method", method, "endpoint", req.Endpoint, "attempt", n+1,
			"maxAttempts", attempts, "backoff", delay, "code", string(last.ErrorDetails.Code))
		if err := backoff.Sleep(ctx, delay); err != nil {
			return aborted(context.Cause(ctx), last.CorrelationID)
		}
	}
	return last
}

// send runs one attempt and, on 401, the refresh-and-replay path. The replay
// is sent with allowRefresh=false so a broken backend cannot loop.
func (c *Client) send(ctx context.Context, a *attempt, allowRefresh bool, label string) *Response {
	c.metrics.RecordAttempt(a.method, label)
	resp, sentToken := c.roundTrip(ctx, a)
	if resp.Status != http.StatusUnauthorized || resp.OK() || !allowRefresh || !canTriggerRefresh(a.endpoint) {
		return resp
	}

	current := c.session.Token()
	switch {
	case current == "":
		return resp
	case current != sentToken:
		c.logDebug("Token rotated while request was in flight, replaying", "endpoint", a.endpoint)
	default:
		if !c.refresh(ctx) {
			if ctx.Err() != nil {
				return aborted(context.Cause(ctx), resp.CorrelationID)
			}
			return resp
		}
		c.logDebug("Session refreshed, replaying request", "endpoint", a.endpoint)
	}
	return c.send(ctx, a, false, label)
}

func aborted(cause error, correlationID string) *Response {
	return failure(newClientError(KindAborted, StatusClientClosed, "Request was cancelled", cause), correlationID)
}
