// Package broadcast defines the ports for pushing real-time snapshots to
// connected observers.
package broadcast

import (
	"context"

	"github.com/Strob0t/tyresync/internal/domain/realtime"
)

// Result summarises one publication.
type Result struct {
	Attempted int
	Failed    int
}

// Publisher fans a snapshot out to every observer registered at call time.
// Delivery failures are handled internally and never returned.
type Publisher interface {
	Publish(ctx context.Context, topic realtime.Topic, snapshot realtime.Snapshot) Result
}

// Notifier bridges committed writes to a Publisher. Notify must only be
// called after the mutation it reports has been durably committed.
type Notifier interface {
	Notify(ctx context.Context, topic realtime.Topic, provider realtime.SnapshotProvider) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, topic realtime.Topic, provider realtime.SnapshotProvider) error

// Notify satisfies the Notifier interface.
func (f NotifierFunc) Notify(ctx context.Context, topic realtime.Topic, provider realtime.SnapshotProvider) error {
	if f == nil {
		return nil
	}
	return f(ctx, topic, provider)
}
