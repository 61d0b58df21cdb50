package receipt

import "sync"

// NoticeKind distinguishes success from failure acknowledgements
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is a message the user has to acknowledge before it goes away
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Notifier delivers notices to the user
type Notifier interface {
	Notify(n Notice)
}

// FlashNotifier holds at most one pending notice until it is acknowledged.
// A newer notice replaces an unacknowledged one.
type FlashNotifier struct {
	mu      sync.Mutex
	pending *Notice
}

// NewFlashNotifier creates an empty FlashNotifier
func NewFlashNotifier() *FlashNotifier {
	return &FlashNotifier{}
}

// Notify stores n as the pending notice
func (f *FlashNotifier) Notify(n Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = &n
}

// Pending returns a copy of the pending notice, or nil
func (f *FlashNotifier) Pending() *Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return nil
	}
	n := *f.pending
	return &n
}

// Acknowledge dismisses the pending notice
func (f *FlashNotifier) Acknowledge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
}
