package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/installation"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/port/database"
	"github.com/Strob0t/tyresync/internal/port/messagequeue"
)

// mockTransport records every frame handed to it.
type mockTransport struct {
	id string

	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func newMockTransport(id string) *mockTransport {
	return &mockTransport{id: id}
}

func (m *mockTransport) ID() string { return m.id }

func (m *mockTransport) Send(_ context.Context, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.frames = append(m.frames, bytes.Clone(frame))
	return nil
}

func (m *mockTransport) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// countingTransport counts Send calls, successful or not.
type countingTransport struct {
	mockTransport
	calls int
}

func (c *countingTransport) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.mockTransport.Send(ctx, frame)
}

var _ database.Store = (*mockStore)(nil)

// mockStore is an in-memory database.Store with error hooks.
type mockStore struct {
	mu            sync.Mutex
	installations []installation.Installation
	nextID        int

	listErr   error
	getErr    error
	createErr error
	updateErr error
	deleteErr error
	listCalls int
}

func (m *mockStore) ListInstallations(_ context.Context) ([]installation.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]installation.Installation, len(m.installations))
	copy(out, m.installations)
	return out, nil
}

func (m *mockStore) GetInstallation(_ context.Context, id string) (*installation.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.installations {
		if m.installations[i].ID == id {
			in := m.installations[i]
			return &in, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateInstallation(_ context.Context, req *installation.CreateRequest) (*installation.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := installation.Installation{
		ID:           fmt.Sprintf("inst-%d", m.nextID),
		VehiclePlate: req.VehiclePlate,
		Position:     req.Position,
		Brand:        req.Brand,
		Model:        req.Model,
		Size:         req.Size,
		TreadDepthMM: req.TreadDepthMM,
		Status:       req.Status,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.InstalledAt != nil {
		in.InstalledAt = *req.InstalledAt
	}
	m.installations = append(m.installations, in)
	return &in, nil
}

func (m *mockStore) UpdateInstallation(_ context.Context, in *installation.Installation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.installations {
		if m.installations[i].ID != in.ID {
			continue
		}
		if m.installations[i].Version != in.Version {
			return domain.ErrConflict
		}
		in.Version++
		m.installations[i] = *in
		return nil
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteInstallation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i := range m.installations {
		if m.installations[i].ID == id {
			m.installations = append(m.installations[:i], m.installations[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) Ping(context.Context) error { return nil }

// mockNotifier records Notify calls and optionally runs the provider.
type mockNotifier struct {
	mu        sync.Mutex
	calls     []realtime.Topic
	snapshots []realtime.Snapshot
	err       error
}

func (m *mockNotifier) Notify(ctx context.Context, topic realtime.Topic, provider realtime.SnapshotProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, topic)
	if m.err != nil {
		return m.err
	}
	snap, err := provider(ctx)
	if err != nil {
		return err
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ messagequeue.Queue = (*mockQueue)(nil)

// mockQueue delivers published messages synchronously to subscribers.
type mockQueue struct {
	mu         sync.Mutex
	handlers   map[string][]messagequeue.Handler
	published  []publishedMsg
	publishErr error
	handlerErr []error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func newMockQueue() *mockQueue {
	return &mockQueue{handlers: make(map[string][]messagequeue.Handler)}
}

func (q *mockQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	if q.publishErr != nil {
		q.mu.Unlock()
		return q.publishErr
	}
	q.published = append(q.published, publishedMsg{subject: subject, data: bytes.Clone(data)})
	handlers := append([]messagequeue.Handler(nil), q.handlers[subject]...)
	q.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, subject, data); err != nil {
			q.mu.Lock()
			q.handlerErr = append(q.handlerErr, err)
			q.mu.Unlock()
		}
	}
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = append(q.handlers[subject], handler)
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }
