package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/voiceengine/errs"
)

func TestLimiter_AcquireUnderLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	require.NoError(t, l.Acquire(ctx, "org-1", 2))
	require.NoError(t, l.Acquire(ctx, "org-1", 2))
}

func TestLimiter_AcquireAtLimitReturnsQuotaExceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	require.NoError(t, l.Acquire(ctx, "org-1", 1))

	err := l.Acquire(ctx, "org-1", 1)
	var quotaErr *errs.QuotaExceededError
	assert.ErrorAs(t, err, &quotaErr)
}

func TestLimiter_ReleaseFreesSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	require.NoError(t, l.Acquire(ctx, "org-1", 1))
	require.NoError(t, l.Release(ctx, "org-1"))
	require.NoError(t, l.Acquire(ctx, "org-1", 1))
}

func TestLimiter_ReleaseBelowZeroIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	require.NoError(t, l.Release(ctx, "org-1"))
	require.NoError(t, l.Acquire(ctx, "org-1", 1))
}

func TestLimiter_OrgsAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	require.NoError(t, l.Acquire(ctx, "org-1", 1))
	require.NoError(t, l.Acquire(ctx, "org-2", 1))
}
