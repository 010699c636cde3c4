package messagequeue

// NotifyRequest asks the server to refresh observers of Topic.
// It never carries the snapshot itself: the receiver always re-reads.
type NotifyRequest struct {
	Topic  string `json:"topic"`
	Origin string `json:"origin,omitempty"`
	Reason string `json:"reason,omitempty"`
}
