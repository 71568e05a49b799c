// Package releasea is the API client of the Releasea console. Every call the
// console makes to its backend goes through one Client, which owns:
//
//   - Bearer token session with single-flight refresh and one replay on 401
//   - CSRF tokens for mutations, fetched once and shared by concurrent callers
//   - Request and response contract validation (see Schema)
//   - Idempotency keys for deploy and canary promotion mutations
//   - Bounded retries with exponential backoff and jitter
//   - Per-attempt timeouts and caller cancellation through context.Context
//   - Prometheus metrics and redacted structured logging
//
// Failures never surface as panics or bare errors: every call returns a
// *Response whose ErrorDetails carries a closed ErrorKind, a status and a
// retryability bit.
//
// Typical usage:
//
//	cfg, err := releasea.LoadConfig()
//	if err != nil {
//	    return err
//	}
//	client := releasea.New(releasea.WithConfig(cfg), releasea.WithMetrics())
//	if user := client.RestoreSession(ctx); user == nil {
//	    // not signed in
//	}
//	resp := client.Post(ctx, "/services/api/deploys", deploy, releasea.Idempotent())
//	if !resp.OK() {
//	    log.Printf("deploy failed: %v", resp.Err())
//	}
//
// Mutations are attempted once unless marked Idempotent and carrying an
// idempotency key, so a retry can never start a second rollout.
package releasea
