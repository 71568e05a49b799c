package releasea

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultIdempotencyWindow is how long a derived key is reused for the same
// submission.
const DefaultIdempotencyWindow = 30 * time.Second

type idempotencyEntry struct {
	key       string
	expiresAt time.Time
}

// idempotencyKeys derives stable Idempotency-Key values for allowlisted
// mutations and caches them briefly so duplicate submissions share one key.
type idempotencyKeys struct {
	mu        sync.Mutex
	entries   map[string]idempotencyEntry
	patterns  []*regexp.Regexp
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newIdempotencyKeys(patterns []string, window time.Duration) (*idempotencyKeys, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("idempotent endpoint pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	return &idempotencyKeys{
		entries:  make(map[string]idempotencyEntry),
		patterns: compiled,
		window:   window,
		now:      time.Now,
	}, nil
}

// resolve returns the key to send, or "" when the call gets no key. keySource
// is "explicit", "derived" or "cached" for metrics.
func (k *idempotencyKeys) resolve(method, endpoint string, body any, explicit string) (key, keySource string) {
	if explicit != "" {
		return explicit, "explicit"
	}
	if isSafeMethod(method) || !k.matches(endpoint) {
		return "", ""
	}

	fingerprint := idempotencyFingerprint(method, endpoint, body)
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	k.sweepLocked(now)
	if entry, ok := k.entries[fingerprint]; ok && now.Before(entry.expiresAt) {
		return entry.key, "cached"
	}

	sum := sha256.Sum256([]byte(fingerprint))
	key = fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:])[:16], now.Unix())
	k.entries[fingerprint] = idempotencyEntry{key: key, expiresAt: now.Add(k.window)}
	return key, "derived"
}

func (k *idempotencyKeys) matches(endpoint string) bool {
	normalized := normalizeEndpoint(endpoint)
	for _, re := range k.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// sweepLocked drops expired entries at most once per window.
func (k *idempotencyKeys) sweepLocked(now time.Time) {
	if now.Sub(k.lastSweep) < k.window {
		return
	}
	for fp, entry := range k.entries {
		if !now.Before(entry.expiresAt) {
			delete(k.entries, fp)
		}
	}
	k.lastSweep = now
}

func (k *idempotencyKeys) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func idempotencyFingerprint(method, endpoint string, body any) string {
	return method + ":" + normalizeEndpoint(endpoint) + ":" + canonicalBody(body)
}

// canonicalBody renders body so that object key order does not matter.
// encoding/json sorts map keys, so a round trip through map[string]any sorts
// every nested object including struct-derived ones.
func canonicalBody(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	case []byte:
		return string(b)
	case url.Values:
		return b.Encode()
	case Payload:
		return b.ContentType + ":" + string(b.Data)
	case *Payload:
		if b == nil {
			return ""
		}
		return b.ContentType + ":" + string(b.Data)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf("%v", body)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return string(data)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return string(data)
	}
	return strings.TrimSpace(string(canonical))
}
