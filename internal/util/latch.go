package util

import (
	"sync"
)

// ReadinessLatch is a one-way boolean flag: the device transport signals it
// once its subscription is confirmed, poll coordinators read it on every
// tick. Single writer, many readers. Signal is idempotent so a transport
// reconnect may signal again.
type ReadinessLatch struct {
	mu    sync.Mutex
	ready bool
}

func NewReadinessLatch() *ReadinessLatch {
	return &ReadinessLatch{}
}

// NewSignaledLatch returns a latch that already reads ready. Used in tests
// and for transports that need no warmup.
func NewSignaledLatch() *ReadinessLatch {
	return &ReadinessLatch{ready: true}
}

func (l *ReadinessLatch) Signal() {
	l.mu.Lock()
	l.ready = true
	l.mu.Unlock()
}

func (l *ReadinessLatch) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}
