package engine

import (
	"sync"

	"dsumotion/pkg/protocol"
)

// SampleQueue hands samples from the receive loop to the consumer tick.
// When full, Push evicts the oldest unread sample: a stale motion reading is
// worth less than a fresh one.
type SampleQueue struct {
	mu      sync.Mutex
	buf     []protocol.MotionSample
	head    int
	n       int
	dropped uint64
}

func NewSampleQueue(capacity int) *SampleQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &SampleQueue{buf: make([]protocol.MotionSample, capacity)}
}

func (q *SampleQueue) Push(s protocol.MotionSample) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.dropped++
	}
	q.buf[(q.head+q.n)%len(q.buf)] = s
	q.n++
}

// Pop returns the oldest sample, or false when the queue is empty.
func (q *SampleQueue) Pop() (protocol.MotionSample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return protocol.MotionSample{}, false
	}
	s := q.buf[q.head]
	q.buf[q.head] = protocol.MotionSample{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return s, true
}

func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *SampleQueue) Cap() int {
	return len(q.buf)
}

// Dropped counts samples evicted by Push since creation.
func (q *SampleQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *SampleQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.buf)
	q.head = 0
	q.n = 0
}
