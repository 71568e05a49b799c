package releasea

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Refresh outcomes recorded in metrics.
const (
	refreshSuccess = "success"
	refreshFailure = "failure"
)

// authPayload is the body returned by login, signup, SSO exchange and refresh.
type authPayload struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the signup request body.
type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

var errMissingToken = errors.New("auth response carried no token")

// refresh runs the refresh sequence once for every concurrent caller. It
// reports whether a new token is now held. ctx bounds only this caller's wait.
func (c *Client) refresh(ctx context.Context) bool {
	ok, shared, err := c.refreshFlight.Do(ctx, "refresh", func(flightCtx context.Context) (bool, error) {
		return c.doRefresh(flightCtx), nil
	})
	if err != nil {
		c.logDebug("Stopped waiting for session refresh", "error", err.Error(), "shared", shared)
		return false
	}
	return ok
}

func (c *Client) doRefresh(ctx context.Context) bool {
	ok := c.runRefresh(ctx)
	if ok {
		c.metrics.RecordRefresh(refreshSuccess)
	} else {
		c.metrics.RecordRefresh(refreshFailure)
	}
	return ok
}

func (c *Client) runRefresh(ctx context.Context) bool {
	csrfToken := c.csrf.ensure(ctx)
	if csrfToken == "" {
		c.logWarn("Session refresh failed: no CSRF token")
		c.session.Clear()
		return false
	}

	resp, _ := c.roundTrip(ctx, &attempt{
		method:    http.MethodPost,
		endpoint:  EndpointRefresh,
		csrfToken: csrfToken,
		timeout:   c.timeout,
	})
	payload, err := decodeAuth(resp)
	if err != nil {
		c.logWarn("Session refresh failed", "status", resp.Status, "correlationID", resp.CorrelationID, "error", err.Error())
		c.session.Clear()
		return false
	}

	c.session.rotateToken(payload.Token, payload.User)
	c.logInfo("Session refreshed", "correlationID", resp.CorrelationID)
	return true
}

// refreshIfExpiring refreshes ahead of time when the held token expires
// within the configured skew.
func (c *Client) refreshIfExpiring(ctx context.Context, endpoint string) {
	if c.refreshSkew <= 0 || !canTriggerRefresh(endpoint) {
		return
	}
	exp, ok := c.session.ExpiresAt()
	if !ok || time.Until(exp) > c.refreshSkew {
		return
	}
	c.logDebug("Bearer token close to expiry, refreshing", "expiresAt", exp)
	c.refresh(ctx)
}

// RestoreSession recovers a session from the refresh cookie at startup. It
// returns the signed-in user, or nil when there is no valid session.
func (c *Client) RestoreSession(ctx context.Context) *User {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.refresh(ctx) {
		return nil
	}
	if user := c.session.User(); user != nil {
		return user
	}

	resp, _ := c.roundTrip(ctx, &attempt{method: http.MethodGet, endpoint: EndpointMe, timeout: c.timeout})
	user, err := decodeUser(resp)
	if err != nil {
		c.logWarn("Could not load current user after refresh", "status", resp.Status, "error", err.Error())
		c.session.Clear()
		return nil
	}
	c.session.SetUser(user)
	return c.session.User()
}

// Login authenticates with email and password and establishes the session.
func (c *Client) Login(ctx context.Context, creds Credentials) *Response {
	return c.authenticate(ctx, EndpointLogin, creds, Schema[Credentials]())
}

// Signup creates an account and establishes the session.
func (c *Client) Signup(ctx context.Context, req SignupRequest) *Response {
	return c.authenticate(ctx, EndpointSignup, req, Schema[SignupRequest]())
}

// ExchangeSSO trades a single sign-on authorization code for a session.
func (c *Client) ExchangeSSO(ctx context.Context, code string) *Response {
	return c.authenticate(ctx, EndpointSSOExchange, map[string]string{"code": code}, nil)
}

func (c *Client) authenticate(ctx context.Context, endpoint string, body any, schema Validator) *Response {
	resp := c.Post(ctx, endpoint, body, RequestSchema(schema))
	if !resp.OK() {
		return resp
	}
	payload, err := decodeAuth(resp)
	if err != nil {
		c.logWarn("Authentication response unusable", "endpoint", endpoint, "correlationID", resp.CorrelationID, "error", err.Error())
		return failure(newClientError(KindContract, StatusResponseContract, "Authentication response did not contain a token", err), resp.CorrelationID)
	}
	c.session.Establish(payload.Token, payload.User)
	return resp
}

// Logout ends the session on the backend. The local session is cleared
// whatever the backend answers.
func (c *Client) Logout(ctx context.Context) *Response {
	resp := c.Post(ctx, EndpointLogout, nil)
	c.session.Clear()
	return resp
}

func decodeAuth(resp *Response) (authPayload, error) {
	var payload authPayload
	if err := resp.Decode(&payload); err != nil {
		return payload, err
	}
	if payload.Token == "" {
		return payload, errMissingToken
	}
	return payload, nil
}

// decodeUser accepts both {"user": {...}} and a bare user object.
func decodeUser(resp *Response) (*User, error) {
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := resp.Decode(&wrapped); err == nil && wrapped.User != nil && wrapped.User.ID != "" {
		return wrapped.User, nil
	}
	var user User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.New("user payload has no id")
	}
	return &user, nil
}
