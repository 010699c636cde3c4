// Package ws implements the WebSocket transport for real-time observers.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/logger"
)

// Registry is the subset of the connection registry the hub drives.
type Registry interface {
	Register(t realtime.Transport, remoteAddr string) realtime.Observer
	Deregister(observerID string)
	Subscribe(observerID string, topic realtime.Topic) (*realtime.Subscription, error)
}

// Options tunes every connection accepted by the hub.
type Options struct {
	// AllowedOrigin is the browser origin allowed to connect, e.g.
	// "http://localhost:3000". Same-origin requests are always accepted.
	AllowedOrigin string
	SendBuffer    int
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	ReadLimit     int64
}

// ControlFrame is sent by clients to manage their topic set.
type ControlFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Client control actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Hub accepts WebSocket connections and registers each as an observer.
type Hub struct {
	registry Registry
	opts     Options

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewHub creates a hub that registers observers in registry.
func NewHub(registry Registry, opts Options) *Hub {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 32
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4096
	}
	return &Hub{
		registry: registry,
		opts:     opts,
		conns:    make(map[*conn]struct{}),
	}
}

// OriginPatterns converts a CORS origin into coder/websocket host patterns.
func OriginPatterns(origin string) []string {
	switch origin {
	case "":
		return nil
	case "*":
		return []string{"*"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}

// HandleWS upgrades the request and serves the observer until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: OriginPatterns(h.opts.AllowedOrigin),
	})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	wsConn.SetReadLimit(h.opts.ReadLimit)

	// Detach from the request so chi's Timeout middleware does not cut the
	// session short; Close and the read loop bound its lifetime instead.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := newConn(uuid.NewString(), wsConn, h.opts.SendBuffer, cancel)
	ctx = logger.WithObserverID(ctx, c.id)

	log := logger.From(ctx)

	// The welcome frame is queued before the observer becomes visible to
	// publishers, so it is always the first frame on the wire.
	if err := c.sendControl(realtime.FrameWelcome, welcomePayload{ObserverID: c.id}); err != nil {
		log.Warn("queue welcome frame", "error", err)
	}

	h.track(c)
	h.registry.Register(c, r.RemoteAddr)
	log.Info("observer connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx, h.opts.WriteTimeout, h.opts.PingInterval)
	}()

	h.readLoop(ctx, c)

	h.registry.Deregister(c.id)
	c.shutdown()
	cancel()
	<-writerDone
	h.untrack(c)
	_ = wsConn.Close(websocket.StatusNormalClosure, "")
	log.Info("observer disconnected")
}

type welcomePayload struct {
	ObserverID string `json:"observer_id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// readLoop consumes control frames until the connection ends. Invalid JSON
// closes the connection; unknown actions get an error frame.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	subs := make(map[realtime.Topic]*realtime.Subscription)
	defer func() {
		for _, s := range subs {
			s.Cancel()
		}
	}()

	for {
		var frame ControlFrame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				logger.From(ctx).Debug("websocket read ended", "error", err)
			}
			return
		}

		topic := realtime.Topic(frame.Topic)
		switch frame.Action {
		case ActionSubscribe:
			if _, ok := subs[topic]; ok {
				continue
			}
			sub, err := h.registry.Subscribe(c.id, topic)
			if err != nil {
				_ = c.sendControl(realtime.FrameError, errorPayload{Message: err.Error()})
				continue
			}
			subs[topic] = sub
		case ActionUnsubscribe:
			if sub, ok := subs[topic]; ok {
				sub.Cancel()
				delete(subs, topic)
			}
		default:
			_ = c.sendControl(realtime.FrameError, errorPayload{Message: "unknown action " + frame.Action})
		}
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close tells every connected observer the server is going away.
// HandleWS goroutines then unwind and deregister on their own.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
			c.shutdown()
		}()
	}
	wg.Wait()
	slog.Info("websocket hub closed", "connections", len(conns))
}

func (h *Hub) track(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) untrack(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}
