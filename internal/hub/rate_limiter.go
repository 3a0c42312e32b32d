package hub

import (
	"sync"
	"time"

	"github.com/user/alphacentauri/internal/pty"
)

// RateLimiter coalesces output per session so that a chatty shell produces
// at most one message per interval.
type RateLimiter struct {
	mu       sync.Mutex
	pending  map[pty.Handle]*pendingOutput
	interval time.Duration
	onFlush  func(handle pty.Handle, msg OutputMessage)
}

type pendingOutput struct {
	data  []byte
	timer *time.Timer
}

func NewRateLimiter(interval time.Duration, onFlush func(pty.Handle, OutputMessage)) *RateLimiter {
	return &RateLimiter{
		pending:  make(map[pty.Handle]*pendingOutput),
		interval: interval,
		onFlush:  onFlush,
	}
}

func (r *RateLimiter) Add(handle pty.Handle, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pending[handle]
	if !exists {
		p = &pendingOutput{}
		r.pending[handle] = p
	}
	p.data = append(p.data, data...)

	if p.timer == nil {
		p.timer = time.AfterFunc(r.interval, func() {
			r.flush(handle)
		})
	}
}

func (r *RateLimiter) flush(handle pty.Handle) {
	r.mu.Lock()
	p, exists := r.pending[handle]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.pending, handle)
	r.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	if r.onFlush != nil && len(p.data) > 0 {
		r.onFlush(handle, OutputMessage{Type: TypeOutput, Handle: handle, Data: string(p.data)})
	}
}

// Flush sends whatever is pending for one session right away.
func (r *RateLimiter) Flush(handle pty.Handle) {
	r.flush(handle)
}

func (r *RateLimiter) FlushAll() {
	r.mu.Lock()
	handles := make([]pty.Handle, 0, len(r.pending))
	for h := range r.pending {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		r.flush(h)
	}
}
