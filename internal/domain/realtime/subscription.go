package realtime

import "sync"

// Subscription is the handle returned when an observer subscribes to a topic.
type Subscription struct {
	ObserverID string
	Topic      Topic

	once   sync.Once
	cancel func()
}

// NewSubscription returns a handle whose Cancel runs cancel at most once.
func NewSubscription(observerID string, topic Topic, cancel func()) *Subscription {
	return &Subscription{ObserverID: observerID, Topic: topic, cancel: cancel}
}

// Cancel removes the subscription. Calling it more than once is a no-op.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
