package gesture

import "dsumotion/pkg/protocol"

// Window is a fixed-capacity ring of the most recent samples.
type Window struct {
	buf  []protocol.MotionSample
	head int
	n    int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]protocol.MotionSample, capacity)}
}

// Push appends s, overwriting the oldest sample when full.
func (w *Window) Push(s protocol.MotionSample) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = s
		w.n++
		return
	}
	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
}

func (w *Window) Len() int { return w.n }
func (w *Window) Cap() int { return len(w.buf) }

// At returns the i-th sample counted from the oldest.
func (w *Window) At(i int) protocol.MotionSample {
	return w.buf[(w.head+i)%len(w.buf)]
}

func (w *Window) Clear() {
	clear(w.buf)
	w.head = 0
	w.n = 0
}

// MeanDelta is the mean magnitude of the acceleration change between
// consecutive samples, oldest to newest. Fewer than two samples yield 0.
func (w *Window) MeanDelta() float32 {
	if w.n < 2 {
		return 0
	}
	var sum float32
	prev := w.At(0).Accelerometer
	for i := 1; i < w.n; i++ {
		cur := w.At(i).Accelerometer
		sum += cur.Sub(prev).Magnitude()
		prev = cur
	}
	return sum / float32(w.n-1)
}
