package audio

import (
	"sync"
	"sync/atomic"
)

// Queue is the bounded FIFO between the capture thread and the sender. Push
// never blocks: when the queue is full the newest chunk is dropped and
// counted. Close is the end-of-audio sentinel for the consumer.
type Queue struct {
	ch chan []byte

	pushed  atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
	mu        sync.RWMutex // guards closed against concurrent Push
	closed    bool
}

// QueueStats represents queue statistics for monitoring
type QueueStats struct {
	Pushed   uint64 `json:"pushed"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}

// NewQueue creates a queue holding at most capacity chunks
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan []byte, capacity)}
}

// Push enqueues chunk without blocking. It reports false when the chunk was
// dropped because the queue is full or already closed.
func (q *Queue) Push(chunk []byte) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}

	select {
	case q.ch <- chunk:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// C returns the receive side. It is closed once Close has been called and
// every queued chunk has been received.
func (q *Queue) C() <-chan []byte {
	return q.ch
}

// Close marks the end of audio. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

// GetStats returns current queue statistics
func (q *Queue) GetStats() QueueStats {
	return QueueStats{
		Pushed:   q.pushed.Load(),
		Dropped:  q.dropped.Load(),
		Depth:    len(q.ch),
		Capacity: cap(q.ch),
	}
}
