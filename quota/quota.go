// Package quota defines the concurrent-call admission port: a counter an
// org's active calls are checked against before a new session starts.
package quota

import "context"

// Limiter enforces a per-org concurrent-call cap.
type Limiter interface {
	// Acquire increments orgID's active-call count and admits the call if
	// the result is within limit. On rejection it returns
	// *errs.QuotaExceededError and leaves the count unincremented.
	Acquire(ctx context.Context, orgID string, limit int) error

	// Release decrements orgID's active-call count. Called once per call
	// that previously succeeded Acquire, at call end.
	Release(ctx context.Context, orgID string) error
}
