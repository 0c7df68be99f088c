// Package eventbus is the Event Bus (C8): Redis pub/sub on
// tenant-scoped topics, decoupling the Job Runner from the Realtime
// Gateway. Grounded on cache/redis.go's GetRedisClient singleton for
// the client, and on original_source's services/events/bus.py for the
// delivery policy: publish failures increment a counter and are
// swallowed rather than propagated, because progress is advisory and
// the Metadata Store remains authoritative (spec §4.8, §7).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is the payload schema from spec §6.3.
type Event struct {
	Event      string `json:"event"`
	JobID      uint64 `json:"job_id"`
	DocumentID uint64 `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	Kind       string `json:"kind"`
	Progress   int    `json:"progress"`
	Error      *string `json:"error"`
	Ts         string `json:"ts"`
}

// Bus publishes/subscribes to `{tenant_id}.jobs` topics.
type Bus struct {
	client        *redis.Client
	publishErrors atomic.Int64
}

func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func topic(tenantID string) string {
	return fmt.Sprintf("%s.jobs", tenantID)
}

// Publish sends an event to the tenant's topic. Failures are counted,
// logged, and swallowed — the caller (the Job Runner) must never be
// blocked or failed by a bus outage (spec §4.8).
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil || b.client == nil {
		b.publishErrors.Add(1)
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("eventbus: marshal event failed: %v", err)
		b.publishErrors.Add(1)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := b.client.Publish(pubCtx, topic(ev.TenantID), data).Err(); err != nil {
		log.Printf("eventbus: publish to %s failed: %v", topic(ev.TenantID), err)
		b.publishErrors.Add(1)
	}
}

// PublishErrors returns the running count of swallowed publish failures.
func (b *Bus) PublishErrors() int64 {
	return b.publishErrors.Load()
}

// Subscription is a live subscriber handle for one tenant's topic.
type Subscription struct {
	sub *redis.PubSub
	ch  <-chan *redis.Message
}

// Subscribe opens a subscription to tenantID's topic. The caller
// receives events only from subscription time forward (spec §4.8); no
// durable replay is attempted. Bus isolation is structural: each
// tenant's topic name is distinct, so a subscriber never receives
// another tenant's messages (spec §8 "Event delivery isolation").
func (b *Bus) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("eventbus: not configured")
	}
	sub := b.client.Subscribe(ctx, topic(tenantID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &Subscription{sub: sub, ch: sub.Channel()}, nil
}

// Next blocks until the next event arrives, ctx is cancelled, or the
// subscription's underlying connection is closed.
func (s *Subscription) Next(ctx context.Context) (Event, bool, error) {
	select {
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return Event{}, false, nil
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			// A malformed message must not kill the subscribe loop
			// (original_source bus.py tolerates per-message errors).
			return Event{}, true, nil
		}
		return ev, true, nil
	}
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	return s.sub.Close()
}

// Now formats the current instant as the RFC3339 UTC timestamp spec
// §6.3 requires for the "ts" field.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
