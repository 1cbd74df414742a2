// Package redis implements quota.Limiter over a shared redis/go-redis/v9
// client, so a concurrent-call cap is enforced across every instance in a
// multi-node deployment rather than per-process.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/quota"
)

const keyPrefix = "voiceengine:quota:"

var _ quota.Limiter = (*Limiter)(nil)

// Limiter keeps one INCR counter per org in Redis.
type Limiter struct {
	client *redis.Client
}

// New wraps an existing *redis.Client. The caller owns the client's
// lifecycle (construct it with redis.NewClient and close it at shutdown).
func New(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

func (l *Limiter) Acquire(ctx context.Context, orgID string, limit int) error {
	key := keyPrefix + orgID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("quota: incr: %w", err)
	}
	if count > int64(limit) {
		l.client.Decr(ctx, key)
		return &errs.QuotaExceededError{Msg: fmt.Sprintf("org %s at concurrent-call limit %d", orgID, limit)}
	}
	return nil
}

func (l *Limiter) Release(ctx context.Context, orgID string) error {
	key := keyPrefix + orgID
	if err := l.client.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("quota: decr: %w", err)
	}
	return nil
}
