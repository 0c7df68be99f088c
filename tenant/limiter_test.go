package tenant

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/ragerrors"
)

func newTestLimiter(t *testing.T, perMinute, dailyTokenQuota int) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLimiter(client, perMinute, dailyTokenQuota)
}

func TestLimiter_AllowRequest_UnderLimit(t *testing.T) {
	l := newTestLimiter(t, 3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.AllowRequest(ctx, "tenant-1"))
	}
}

func TestLimiter_AllowRequest_OverLimit(t *testing.T) {
	l := newTestLimiter(t, 2, 0)
	ctx := context.Background()

	require.NoError(t, l.AllowRequest(ctx, "tenant-1"))
	require.NoError(t, l.AllowRequest(ctx, "tenant-1"))

	err := l.AllowRequest(ctx, "tenant-1")
	require.Error(t, err)
	assert.Equal(t, ragerrors.QuotaExceeded, ragerrors.KindOf(err))
}

func TestLimiter_AllowRequest_PerTenantIsolated(t *testing.T) {
	l := newTestLimiter(t, 1, 0)
	ctx := context.Background()

	require.NoError(t, l.AllowRequest(ctx, "tenant-a"))
	assert.NoError(t, l.AllowRequest(ctx, "tenant-b"))
}

func TestLimiter_ChargeTokens_UnderQuota(t *testing.T) {
	l := newTestLimiter(t, 0, 1000)
	ctx := context.Background()

	assert.NoError(t, l.ChargeTokens(ctx, "tenant-1", 500))
	assert.NoError(t, l.ChargeTokens(ctx, "tenant-1", 400))
}

func TestLimiter_ChargeTokens_OverQuotaRejected(t *testing.T) {
	l := newTestLimiter(t, 0, 100)
	ctx := context.Background()

	require.NoError(t, l.ChargeTokens(ctx, "tenant-1", 100))

	err := l.ChargeTokens(ctx, "tenant-1", 1)
	require.Error(t, err)
	assert.Equal(t, ragerrors.QuotaExceeded, ragerrors.KindOf(err))
}

func TestLimiter_NilClientNeverBlocks(t *testing.T) {
	l := NewLimiter(nil, 1, 1)
	ctx := context.Background()

	assert.NoError(t, l.AllowRequest(ctx, "tenant-1"))
	assert.NoError(t, l.ChargeTokens(ctx, "tenant-1", 9999))
}
