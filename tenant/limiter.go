package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ragbackend/ragerrors"
)

// rateLimitKey follows the convention original_source's rate limiter
// uses: "rate_limit:<resource>:<tenant_id>" (SPEC_FULL.md supplemented
// feature; spec.md names only the per-tenant bound, not the key shape).
func rateLimitKey(resource, tenantID string) string {
	return fmt.Sprintf("rate_limit:%s:%s", resource, tenantID)
}

// Limiter enforces the per-tenant request rate and daily token quota
// spec §4.12 requires, via Redis INCR+EXPIRE counters the way the
// teacher's cache/redis.go singleton is already wired for the event
// bus — atomic increments across concurrent requests for the same
// tenant, with the window boundary enforced by the key's own TTL.
type Limiter struct {
	client          *redis.Client
	perMinute       int64
	dailyTokenQuota int64
}

func NewLimiter(client *redis.Client, perMinute, dailyTokenQuota int) *Limiter {
	return &Limiter{client: client, perMinute: int64(perMinute), dailyTokenQuota: int64(dailyTokenQuota)}
}

// AllowRequest increments and checks the tenant's per-minute request
// counter, returning QuotaExceeded once perMinute is exceeded within
// the current minute window.
func (l *Limiter) AllowRequest(ctx context.Context, tenantID string) error {
	if l == nil || l.client == nil || l.perMinute <= 0 {
		return nil
	}
	count, err := l.incrWithExpiry(ctx, rateLimitKey("requests", tenantID), time.Minute)
	if err != nil {
		return nil // Redis outage never blocks traffic; rate limiting is best-effort.
	}
	if count > l.perMinute {
		return ragerrors.New(ragerrors.QuotaExceeded, fmt.Sprintf("tenant: rate limit of %d requests/min exceeded", l.perMinute))
	}
	return nil
}

// ChargeTokens adds n tokens to the tenant's daily usage counter,
// rejecting the call up front if the tenant is already at or over
// quota (spec §4.12: "daily token quota").
func (l *Limiter) ChargeTokens(ctx context.Context, tenantID string, n int) error {
	if l == nil || l.client == nil || l.dailyTokenQuota <= 0 {
		return nil
	}
	key := rateLimitKey("tokens", tenantID)
	current, err := l.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return nil
	}
	if current >= l.dailyTokenQuota {
		return ragerrors.New(ragerrors.QuotaExceeded, fmt.Sprintf("tenant: daily token quota of %d exceeded", l.dailyTokenQuota))
	}

	pipe := l.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil
	}
	_ = incr
	return nil
}

// Middleware aborts with 429 when the authenticated tenant has
// exceeded its per-minute request rate. It must run after
// Authenticator.Middleware so tenant_id is already on the context.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := FromContext(c)
		if err := l.AllowRequest(c.Request.Context(), tenantID); err != nil {
			c.AbortWithStatusJSON(ragerrors.HTTPStatus(ragerrors.KindOf(err)), gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func (l *Limiter) incrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
