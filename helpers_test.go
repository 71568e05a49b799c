package releasea

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const (
	testCSRFToken = "csrf-0123456789abcdef"
	testPrefix    = "/api/v1"
)

// fakeBackend counts every call by "METHOD /path" before routing it.
type fakeBackend struct {
	mu     sync.Mutex
	calls  map[string]int
	seen   []*http.Request
	mux    *http.ServeMux
	server *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{calls: make(map[string]int), mux: http.NewServeMux()}
	b.server = httptest.NewServer(b)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.Method+" "+r.URL.Path]++
	b.seen = append(b.seen, r.Clone(r.Context()))
	b.mu.Unlock()
	b.mux.ServeHTTP(w, r)
}

// handle registers h for method and an endpoint relative to the API prefix.
func (b *fakeBackend) handle(method, endpoint string, h http.HandlerFunc) {
	b.mux.HandleFunc(method+" "+testPrefix+endpoint, h)
}

func (b *fakeBackend) withCSRF() *fakeBackend {
	b.handle(http.MethodGet, EndpointCSRF, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": testCSRFToken})
	})
	return b
}

func (b *fakeBackend) count(method, endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method+" "+testPrefix+endpoint]
}

func (b *fakeBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// requests returns the recorded requests for method and endpoint in order.
func (b *fakeBackend) requests(method, endpoint string) []*http.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*http.Request
	for _, r := range b.seen {
		if r.Method == method && r.URL.Path == testPrefix+endpoint {
			out = append(out, r)
		}
	}
	return out
}

func (b *fakeBackend) client(opts ...Option) *Client {
	base := []Option{
		WithBaseURL(b.server.URL),
		WithAPIPrefix(testPrefix),
		WithRetry(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	}
	return New(append(base, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
