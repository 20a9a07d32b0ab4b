package rpc

import (
	"sync"
	"time"
)

// reply is what the dispatch loop hands to a waiting call.
type reply struct {
	body []byte
	err  error
}

// future is completed exactly once, by the dispatch loop or by Close.
// Duplicate or late completions are ignored.
type future struct {
	ch   chan struct{}
	once sync.Once
	res  reply
}

func newFuture() *future {
	return &future{ch: make(chan struct{})}
}

// resolve reports whether this call completed the future.
func (f *future) resolve(r reply) bool {
	done := false
	f.once.Do(func() {
		f.res = r
		close(f.ch)
		done = true
	})
	return done
}

// done is closed when the result is available.
func (f *future) done() <-chan struct{} { return f.ch }

// result must only be read after done is closed.
func (f *future) result() reply { return f.res }

// pendingCall is the bookkeeping entry for one outstanding request. It is
// owned by the Client that created it and removed on resolution or timeout.
type pendingCall struct {
	correlationID string
	queue         string
	createdAt     time.Time
	deadline      time.Time
	future        *future
}
