// Package memory implements quota.Limiter with an in-process counter, for
// local development and single-instance deployments that don't run Redis.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/quota"
)

var _ quota.Limiter = (*Limiter)(nil)

// Limiter is a sync.Mutex-guarded map-backed quota.Limiter.
type Limiter struct {
	mu     sync.Mutex
	counts map[string]int
}

// New returns an empty Limiter.
func New() *Limiter {
	return &Limiter{counts: make(map[string]int)}
}

func (l *Limiter) Acquire(ctx context.Context, orgID string, limit int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[orgID]+1 > limit {
		return &errs.QuotaExceededError{Msg: fmt.Sprintf("org %s at concurrent-call limit %d", orgID, limit)}
	}
	l.counts[orgID]++
	return nil
}

func (l *Limiter) Release(ctx context.Context, orgID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[orgID] > 0 {
		l.counts[orgID]--
	}
	return nil
}
