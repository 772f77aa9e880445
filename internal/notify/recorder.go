package notify

import (
	"context"
	"sync"
)

// Recorder implements Notifier by keeping every message in memory. It is
// used by tests and by the local dispatch mode.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
