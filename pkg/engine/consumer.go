package engine

import (
	"context"
	"time"

	"dsumotion/pkg/protocol"
)

// Processor consumes samples on the application side, e.g. a gesture recognizer.
type Processor interface {
	Process(protocol.MotionSample)
}

// Consumer is the application tick: it drains the SampleQueue into a Processor.
type Consumer struct {
	queue    *SampleQueue
	proc     Processor
	onSample []func(protocol.MotionSample)
}

type ConsumerOption func(*Consumer)

// WithSampleHandler observes every drained sample before it is processed.
func WithSampleHandler(fn func(protocol.MotionSample)) ConsumerOption {
	return func(c *Consumer) {
		if fn != nil {
			c.onSample = append(c.onSample, fn)
		}
	}
}

func NewConsumer(queue *SampleQueue, proc Processor, opts ...ConsumerOption) *Consumer {
	c := &Consumer{queue: queue, proc: proc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tick drains everything currently queued and returns how many samples it handled.
// It never blocks.
func (c *Consumer) Tick() int {
	n := 0
	for {
		s, ok := c.queue.Pop()
		if !ok {
			return n
		}
		for _, fn := range c.onSample {
			fn(s)
		}
		if c.proc != nil {
			c.proc.Process(s)
		}
		n++
	}
}

// Run calls Tick every interval until ctx is done.
func (c *Consumer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second / 120
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}
