// Package realtime is the Realtime Gateway (C9): one goroutine per
// WebSocket connection bridging an eventbus.Subscription to the
// client socket, with ping/pong liveness and bounded-queue
// backpressure. Grounded on the teacher's websocket read/write-loop
// shape (formerly tts/cosy_stream.go, adapted here from a
// speech-synthesis duplex socket to a one-directional event relay),
// with a mutex-guarded writer (safeConn) around the *websocket.Conn.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ragbackend/eventbus"
)

// Close codes (spec §6.3).
const (
	CloseBusUnavailable = 4000
	CloseUnauthorized   = 4001
	CloseMissingTenant  = 4002
	CloseIdleTimeout    = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway upgrades HTTP connections and relays one tenant's events to
// each connected client.
type Gateway struct {
	bus           *eventbus.Bus
	bufferLimit   int
	pingInterval  time.Duration
	pingTimeout   time.Duration
}

func New(bus *eventbus.Bus, bufferLimit int, pingInterval, pingTimeout time.Duration) *Gateway {
	return &Gateway{bus: bus, bufferLimit: bufferLimit, pingInterval: pingInterval, pingTimeout: pingTimeout}
}

// Serve upgrades the request and runs the connection's relay loop
// until the client disconnects or the subscription dies. tenantID MUST
// already be resolved from authenticated credentials (spec §4.9: "NOT
// from query params alone for authoritative filtering").
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub, err := g.bus.Subscribe(r.Context(), tenantID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseBusUnavailable, "bus unavailable"),
			time.Now().Add(time.Second))
		return
	}
	defer sub.Close()

	safe := &safeConn{conn: conn}
	safe.sendJSON(map[string]any{"event": "connected", "tenant_id": tenantID, "ts": eventbus.Now()})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	// Drain client frames (pings/close) on its own goroutine; this
	// connection never reads application data from the client.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.relayLoop(ctx, safe, sub, pongCh)
}

func (g *Gateway) relayLoop(ctx context.Context, conn *safeConn, sub *eventbus.Subscription, pongCh <-chan struct{}) {
	events := make(chan eventbus.Event, g.bufferLimit)
	var dropped int64
	var mu sync.Mutex

	go func() {
		for {
			ev, ok, err := sub.Next(ctx)
			if err != nil || !ok {
				if err != nil {
					conn.closeWithCode(CloseBusUnavailable, "bus unavailable")
				}
				return
			}
			select {
			case events <- ev:
			default:
				// Bounded-queue backpressure: drop the oldest buffered
				// event rather than block the bus (spec §4.9).
				mu.Lock()
				select {
				case <-events:
				default:
				}
				mu.Unlock()
				select {
				case events <- ev:
				default:
					dropped++
				}
			}
		}
	}()

	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := conn.sendJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(g.pingTimeout)
			if err := conn.ping(deadline); err != nil {
				return
			}
			select {
			case <-pongCh:
			case <-time.After(g.pingTimeout):
				conn.closeWithCode(CloseIdleTimeout, "idle timeout")
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// safeConn is a mutex-guarded writer so the ping ticker and the event relay never interleave
// writes on the same *websocket.Conn, which is not safe for concurrent
// writers.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *safeConn) sendJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *safeConn) ping(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *safeConn) closeWithCode(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
}
