package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Submission is a task accepted by Local.
type Submission struct {
	Handle  string
	Kind    Kind
	Payload Payload
}

// Local accepts every submission without running it. It backs development
// stacks and tests.
type Local struct {
	mu      sync.Mutex
	subs    []Submission
	Logger  *slog.Logger
	FailFor map[Kind]error
}

// Submit implements Dispatcher.
func (l *Local) Submit(_ context.Context, kind Kind, payload Payload) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.FailFor[kind]; err != nil {
		return "", err
	}
	handle := uuid.NewString()
	l.subs = append(l.subs, Submission{Handle: handle, Kind: kind, Payload: payload})
	if l.Logger != nil {
		l.Logger.Info("local dispatch", "kind", kind, "job", payload.JobID, "handle", handle)
	}
	return handle, nil
}

// Submissions returns a copy of everything submitted so far.
func (l *Local) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Submission, len(l.subs))
	copy(out, l.subs)
	return out
}
