package releasea

import (
	"net/http"
	"regexp"
	"strings"
)

// Auth endpoints, relative to the API prefix.
const (
	EndpointCSRF                 = "/auth/csrf"
	EndpointRefresh              = "/auth/refresh"
	EndpointLogin                = "/auth/login"
	EndpointSignup               = "/auth/signup"
	EndpointLogout               = "/auth/logout"
	EndpointMe                   = "/auth/me"
	EndpointSSOExchange          = "/auth/sso/exchange"
	EndpointPasswordReset        = "/auth/password/reset"
	EndpointPasswordResetConfirm = "/auth/password/reset/confirm"
)

// csrfExempt endpoints must work before a CSRF token can exist.
var csrfExempt = map[string]struct{}{
	EndpointLogin:                {},
	EndpointSignup:               {},
	EndpointPasswordReset:        {},
	EndpointPasswordResetConfirm: {},
	EndpointSSOExchange:          {},
	EndpointCSRF:                 {},
}

// refreshIneligible endpoints never trigger a session refresh on 401.
var refreshIneligible = map[string]struct{}{
	EndpointLogin:                {},
	EndpointSignup:               {},
	EndpointSSOExchange:          {},
	EndpointRefresh:              {},
	EndpointLogout:               {},
	EndpointCSRF:                 {},
	EndpointPasswordReset:        {},
	EndpointPasswordResetConfirm: {},
}

// DefaultIdempotentEndpoints match mutations whose duplicate execution would
// start a second real rollout: deploy creation and canary promotion.
var DefaultIdempotentEndpoints = []string{
	`^/deploys$`,
	`^/services/[^/]+/deploys$`,
	`^/deploys/[^/]+/canary/promote$`,
	`^/services/[^/]+/canary/promote$`,
}

// normalizeEndpoint lowercases the path, drops query and fragment, forces a
// leading slash and trims a trailing one.
func normalizeEndpoint(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	endpoint = strings.ToLower(strings.TrimSpace(endpoint))
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if len(endpoint) > 1 {
		endpoint = strings.TrimRight(endpoint, "/")
		if endpoint == "" {
			endpoint = "/"
		}
	}
	return endpoint
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func isSupportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions,
		http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// IsIdempotentMethod reports whether repeating the method has no additional
// effect on the server.
func IsIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func needsCSRF(method, endpoint string, override *bool) bool {
	if override != nil {
		return *override
	}
	if isSafeMethod(method) {
		return false
	}
	_, exempt := csrfExempt[normalizeEndpoint(endpoint)]
	return !exempt
}

func canTriggerRefresh(endpoint string) bool {
	_, blocked := refreshIneligible[normalizeEndpoint(endpoint)]
	return !blocked
}

// collections name resources whose next path segment is a slug or id.
var collections = map[string]struct{}{
	"services":     {},
	"deploys":      {},
	"workers":      {},
	"environments": {},
	"projects":     {},
	"teams":        {},
	"users":        {},
	"rules":        {},
	"secrets":      {},
	"templates":    {},
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}|[0-9a-f]{24,})$`)

// metricEndpoint collapses identifier-like path segments so metric label
// cardinality stays bounded.
func metricEndpoint(endpoint string) string {
	parts := strings.Split(normalizeEndpoint(endpoint), "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
			continue
		}
		if i > 0 && p != "" {
			if _, ok := collections[parts[i-1]]; ok {
				parts[i] = ":id"
			}
		}
	}
	return strings.Join(parts, "/")
}
