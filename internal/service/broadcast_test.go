package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/tyresync/internal/domain/realtime"
)

func mustSnapshot(t *testing.T, raw string) realtime.Snapshot {
	t.Helper()
	s, err := realtime.NewSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}

func decodeFrame(t *testing.T, frame []byte) realtime.Message {
	t.Helper()
	var msg realtime.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("decode frame %s: %v", frame, err)
	}
	return msg
}

// N registered observers -> N delivery attempts, whatever their outcome.
func TestBroadcast_AttemptsEveryObserver(t *testing.T) {
	r := NewConnectionRegistry(nil)
	transports := make([]*countingTransport, 5)
	for i := range transports {
		transports[i] = &countingTransport{mockTransport: mockTransport{id: string(rune('a' + i))}}
		r.Register(transports[i], "")
	}
	transports[1].sendErr = realtime.ErrObserverClosed
	transports[3].sendErr = realtime.ErrSlowObserver

	ch := NewBroadcastChannel(r, nil)
	res := ch.Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, `[]`))

	if res.Attempted != 5 || res.Failed != 2 {
		t.Fatalf("expected 5 attempted / 2 failed, got %+v", res)
	}
	for i, tr := range transports {
		if tr.calls != 1 {
			t.Fatalf("transport %d: expected 1 send attempt, got %d", i, tr.calls)
		}
	}
	if got := len(transports[4].received()); got != 1 {
		t.Fatalf("healthy observer after failures should still receive, got %d", got)
	}
}

// Deregistered X gets nothing; Y registered throughout gets the delivery.
func TestBroadcast_DeregisteredObserverGetsNothing(t *testing.T) {
	r := NewConnectionRegistry(nil)
	x, y := newMockTransport("x"), newMockTransport("y")
	r.Register(x, "")
	r.Register(y, "")
	r.Deregister("x")

	NewBroadcastChannel(r, nil).Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, `[1]`))

	if len(x.received()) != 0 {
		t.Fatal("deregistered observer received a push")
	}
	if len(y.received()) != 1 {
		t.Fatalf("expected y to receive 1 push, got %d", len(y.received()))
	}
}

// The payload on the wire is byte-for-byte the snapshot.
func TestBroadcast_PayloadIsSnapshotBytes(t *testing.T) {
	r := NewConnectionRegistry(nil)
	a := newMockTransport("a")
	r.Register(a, "")

	raw := `[{"id":1,"name":"x","nested":{"k":[1,2.50,"é"]}}]`
	NewBroadcastChannel(r, nil).Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, raw))

	msg := decodeFrame(t, a.received()[0])
	if msg.Type != string(realtime.TopicRefreshData) {
		t.Fatalf("expected type refreshData, got %q", msg.Type)
	}
	if string(msg.Payload) != raw {
		t.Fatalf("payload changed in transit:\n got  %s\n want %s", msg.Payload, raw)
	}
}

func TestBroadcast_NoObserversIsNoop(t *testing.T) {
	res := NewBroadcastChannel(NewConnectionRegistry(nil), nil).
		Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, `[]`))
	if res.Attempted != 0 || res.Failed != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestBroadcast_TopicFilter(t *testing.T) {
	r := NewConnectionRegistry(nil)
	all, refresh, other := newMockTransport("all"), newMockTransport("refresh"), newMockTransport("other")
	r.Register(all, "")
	r.Register(refresh, "")
	r.Register(other, "")
	if _, err := r.Subscribe("refresh", realtime.TopicRefreshData); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Subscribe("other", "vehicles"); err != nil {
		t.Fatal(err)
	}

	res := NewBroadcastChannel(r, nil).Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, `[]`))

	if res.Attempted != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempted)
	}
	if len(all.received()) != 1 || len(refresh.received()) != 1 {
		t.Fatal("unsubscribed and matching observers should both receive")
	}
	if len(other.received()) != 0 {
		t.Fatal("observer subscribed to another topic must not receive")
	}
}

func TestBroadcast_CancelledSubscriptionReceivesNothing(t *testing.T) {
	r := NewConnectionRegistry(nil)
	a := newMockTransport("a")
	r.Register(a, "")
	sub, err := r.Subscribe("a", realtime.TopicRefreshData)
	if err != nil {
		t.Fatal(err)
	}
	sub.Cancel()

	ch := NewBroadcastChannel(r, nil)
	for _, topic := range []realtime.Topic{realtime.TopicRefreshData, "vehicles"} {
		if res := ch.Publish(context.Background(), topic, mustSnapshot(t, `[]`)); res.Attempted != 0 {
			t.Fatalf("%s: expected no attempts, got %+v", topic, res)
		}
	}
	if len(a.received()) != 0 {
		t.Fatalf("observer with no remaining subscriptions received %d frames", len(a.received()))
	}

	if _, err := r.Subscribe("a", realtime.TopicRefreshData); err != nil {
		t.Fatal(err)
	}
	if res := ch.Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, `[]`)); res.Attempted != 1 {
		t.Fatalf("resubscribed observer should be attempted, got %+v", res)
	}
}

func TestBroadcast_FailureIsNotReturned(t *testing.T) {
	r := NewConnectionRegistry(nil)
	bad := newMockTransport("bad")
	bad.sendErr = errors.New("write: broken pipe")
	r.Register(bad, "")

	res := NewBroadcastChannel(r, nil).Publish(context.Background(), realtime.TopicRefreshData, mustSnapshot(t, `{}`))
	if res.Failed != 1 {
		t.Fatalf("expected failure to be counted, got %+v", res)
	}
}
