package releasea

import (
	"context"
	"fmt"
	"net/http"

	"github.com/releasea/releasea-console-sub001/internal/singleflight"
)

// DefaultCSRFMinLength is the shortest CSRF token accepted from the backend.
const DefaultCSRFMinLength = 16

type csrfPayload struct {
	CSRFToken string `json:"csrfToken"`
}

// csrfManager lazily fetches the CSRF token and stores it on the session.
type csrfManager struct {
	client    *Client
	minLength int
	flight    singleflight.Group[string]
}

// ensure returns the cached CSRF token or fetches one, sharing a single
// in-flight fetch between concurrent callers. "" means no token could be
// obtained; ctx only bounds this caller's wait.
func (m *csrfManager) ensure(ctx context.Context) string {
	session := m.client.session
	if token := session.CSRFToken(); token != "" {
		return token
	}

	token, shared, err := m.flight.Do(ctx, "csrf", func(fetchCtx context.Context) (string, error) {
		// A flight that finished just before this one started may already
		// have cached a token.
		if token := session.CSRFToken(); token != "" {
			return token, nil
		}
		return m.fetch(fetchCtx)
	})
	if err != nil {
		m.client.logWarn("CSRF token unavailable", "error", err.Error(), "shared", shared)
		return ""
	}
	return token
}

func (m *csrfManager) fetch(ctx context.Context) (string, error) {
	gen := m.client.session.csrfGeneration()
	m.client.metrics.RecordCSRFFetch()

	resp, _ := m.client.roundTrip(ctx, &attempt{
		method:   http.MethodGet,
		endpoint: EndpointCSRF,
		timeout:  m.client.timeout,
	})
	if !resp.OK() {
		m.client.metrics.RecordCSRFFailure()
		return "", fmt.Errorf("fetch csrf token: %w", resp.Err())
	}

	var payload csrfPayload
	if err := resp.Decode(&payload); err != nil {
		m.client.metrics.RecordCSRFFailure()
		return "", fmt.Errorf("decode csrf token: %w", err)
	}
	if len(payload.CSRFToken) < m.minLength {
		m.client.metrics.RecordCSRFFailure()
		return "", fmt.Errorf("csrf token shorter than %d characters", m.minLength)
	}

	if !m.client.session.storeCSRF(payload.CSRFToken, gen) {
		m.client.logDebug("Discarding CSRF token fetched before session was cleared")
	}
	return payload.CSRFToken, nil
}
