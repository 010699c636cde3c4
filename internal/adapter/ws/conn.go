package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/logger"
)

// conn is one observer's transport. Frames are queued by Send and written in
// order by writeLoop, so a slow peer only ever fills its own queue.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

var _ realtime.Transport = (*conn)(nil)

func newConn(id string, ws *websocket.Conn, buffer int, cancel context.CancelFunc) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (c *conn) ID() string { return c.id }

// Send queues frame without blocking.
func (c *conn) Send(_ context.Context, frame []byte) error {
	select {
	case <-c.done:
		return realtime.ErrObserverClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return realtime.ErrObserverClosed
	default:
		return realtime.ErrSlowObserver
	}
}

func (c *conn) sendControl(typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(realtime.Message{Type: typ, Payload: data})
	if err != nil {
		return err
	}
	return c.Send(context.Background(), frame)
}

// shutdown stops accepting frames. Safe to call more than once.
func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// writeLoop drains the queue until the connection shuts down or a write
// fails. Every write and ping is bounded by writeTimeout.
func (c *conn) writeLoop(ctx context.Context, writeTimeout, pingInterval time.Duration) {
	var ping <-chan time.Time
	if pingInterval > 0 {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.write(ctx, writeTimeout, frame); err != nil {
				logger.From(ctx).Debug("websocket write failed", "error", err)
				c.shutdown()
				_ = c.ws.CloseNow()
				return
			}
		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				logger.From(ctx).Debug("websocket ping failed", "error", err)
				c.shutdown()
				_ = c.ws.CloseNow()
				return
			}
		}
	}
}

func (c *conn) write(ctx context.Context, timeout time.Duration, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, frame)
}
