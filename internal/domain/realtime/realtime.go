// Package realtime defines the types shared by the fan-out notifier:
// topics, snapshots, observers and the wire envelope pushed to clients.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// TopicRefreshData is the topic pushed after every committed installation write.
const TopicRefreshData Topic = "refreshData"

// Control frame types sent by the server outside of any topic.
const (
	FrameWelcome = "welcome"
	FrameError   = "error"
)

var (
	// ErrSlowObserver is returned by a transport whose send queue is full.
	ErrSlowObserver = errors.New("observer send queue full")

	// ErrObserverClosed is returned by a transport that has already shut down.
	ErrObserverClosed = errors.New("observer connection closed")

	// ErrSnapshotRead wraps failures of a SnapshotProvider.
	ErrSnapshotRead = errors.New("snapshot read failed")
)

// Topic names a class of update. It is only ever used as a lookup key.
type Topic string

// Valid reports whether t is usable as a topic name.
func (t Topic) Valid() bool {
	return t != "" && len(t) <= 128
}

func (t Topic) String() string { return string(t) }

// Snapshot is the full, point-in-time JSON representation of a collection.
// The zero value is an empty snapshot. A Snapshot never shares its backing
// bytes with the caller that built it.
type Snapshot struct {
	data json.RawMessage
}

// NewSnapshot copies raw JSON into a Snapshot. The bytes must be valid JSON.
func NewSnapshot(raw []byte) (Snapshot, error) {
	if !json.Valid(raw) {
		return Snapshot{}, errors.New("snapshot: invalid JSON")
	}
	return Snapshot{data: bytes.Clone(raw)}, nil
}

// EncodeSnapshot marshals v into a Snapshot. A nil slice is encoded as [].
func EncodeSnapshot(v any) (Snapshot, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: marshal: %w", err)
	}
	if bytes.Equal(data, []byte("null")) {
		data = []byte("[]")
	}
	return Snapshot{data: data}, nil
}

// Bytes returns a copy of the snapshot JSON.
func (s Snapshot) Bytes() []byte {
	return bytes.Clone(s.data)
}

// Len returns the encoded size in bytes.
func (s Snapshot) Len() int { return len(s.data) }

// IsZero reports whether the snapshot holds no data.
func (s Snapshot) IsZero() bool { return len(s.data) == 0 }

// SnapshotProvider reads the current authoritative snapshot. It must not
// have side effects.
type SnapshotProvider func(ctx context.Context) (Snapshot, error)

// JSONProvider adapts a typed read into a SnapshotProvider.
func JSONProvider[T any](read func(ctx context.Context) (T, error)) SnapshotProvider {
	return func(ctx context.Context) (Snapshot, error) {
		v, err := read(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		return EncodeSnapshot(v)
	}
}

// Message is the envelope for every frame written to an observer.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMessage builds the wire frame for a topic publication. The snapshot
// bytes are spliced in verbatim: encoding/json would compact and HTML-escape
// a RawMessage payload.
func EncodeMessage(topic Topic, s Snapshot) ([]byte, error) {
	typ, err := json.Marshal(string(topic))
	if err != nil {
		return nil, fmt.Errorf("encode message type: %w", err)
	}
	payload := s.data
	if payload == nil {
		payload = json.RawMessage("null")
	}

	frame := make([]byte, 0, len(typ)+len(payload)+len(`{"type":,"payload":}`))
	frame = append(frame, `{"type":`...)
	frame = append(frame, typ...)
	frame = append(frame, `,"payload":`...)
	frame = append(frame, payload...)
	frame = append(frame, '}')
	return frame, nil
}

// Transport is the server side of one observer's persistent connection.
// Send must not block on network I/O; implementations queue the frame and
// write it asynchronously, in order.
type Transport interface {
	ID() string
	Send(ctx context.Context, frame []byte) error
}

// Observer is a connected client awaiting pushes. RemoteAddr is kept for
// server-side logs only and never serialized.
type Observer struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"-"`
	ConnectedAt time.Time `json:"connected_at"`
	Topics      []Topic   `json:"topics,omitempty"`
	// Filtered is set by the first subscribe. From then on only Topics are
	// delivered, even after every subscription has been cancelled.
	Filtered  bool      `json:"filtered"`
	Transport Transport `json:"-"`
}

// Accepts reports whether the observer should receive a publication on t.
// An observer that never subscribed receives every topic.
func (o Observer) Accepts(t Topic) bool {
	if !o.Filtered {
		return true
	}
	return slices.Contains(o.Topics, t)
}
