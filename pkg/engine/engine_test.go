package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dsumotion/pkg/engine"
	"dsumotion/pkg/protocol"
)

func sampleAt(ts float64) protocol.MotionSample {
	return protocol.MotionSample{Connected: true, Timestamp: ts}
}

func TestSampleQueueEvictsOldest(t *testing.T) {
	q := engine.NewSampleQueue(4)
	for i := 0; i < 5; i++ {
		q.Push(sampleAt(float64(i)))
	}

	require.Equal(t, 4, q.Len())
	require.Equal(t, uint64(1), q.Dropped())

	var got []float64
	for {
		s, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, s.Timestamp)
	}
	require.Equal(t, []float64{1, 2, 3, 4}, got)
}

func TestSampleQueuePopEmpty(t *testing.T) {
	q := engine.NewSampleQueue(2)
	_, ok := q.Pop()
	require.False(t, ok)

	q.Push(sampleAt(1))
	q.Clear()
	require.Zero(t, q.Len())
	_, ok = q.Pop()
	require.False(t, ok)
	require.Equal(t, 2, q.Cap())
}

func TestSampleQueueWrapAround(t *testing.T) {
	q := engine.NewSampleQueue(3)
	next := 0.0
	want := 0.0
	for round := 0; round < 10; round++ {
		q.Push(sampleAt(next))
		next++
		q.Push(sampleAt(next))
		next++
		for i := 0; i < 2; i++ {
			s, ok := q.Pop()
			require.True(t, ok)
			require.Equal(t, want, s.Timestamp)
			want++
		}
	}
	require.Zero(t, q.Dropped())
}

func TestSampleQueueConcurrentProducerConsumer(t *testing.T) {
	q := engine.NewSampleQueue(8)
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(sampleAt(float64(i)))
		}
	}()

	last := -1.0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		s, ok := q.Pop()
		if ok {
			require.Greater(t, s.Timestamp, last, "samples must stay ordered")
			last = s.Timestamp
			continue
		}
		select {
		case <-done:
			if q.Len() == 0 {
				require.Equal(t, float64(total-1), last)
				return
			}
		default:
		}
	}
}

type recordingProcessor struct {
	samples []protocol.MotionSample
}

func (p *recordingProcessor) Process(s protocol.MotionSample) {
	p.samples = append(p.samples, s)
}

func TestConsumerTickDrainsQueue(t *testing.T) {
	q := engine.NewSampleQueue(4)
	proc := &recordingProcessor{}
	var seen int
	c := engine.NewConsumer(q, proc, engine.WithSampleHandler(func(protocol.MotionSample) {
		seen++
	}))

	q.Push(sampleAt(1))
	q.Push(sampleAt(2))
	require.Equal(t, 2, c.Tick())
	require.Equal(t, 0, c.Tick())
	require.Equal(t, 2, seen)
	require.Len(t, proc.samples, 2)
	require.Equal(t, 1.0, proc.samples[0].Timestamp)
}

func TestHubDoesNotBlockOnSlowConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := engine.NewHub(engine.WithBroadcastBuffer(1), engine.WithClientBuffer(1))
	go hub.Run(ctx)

	fast := hub.SubscribeWithBuffer(128)
	slow := hub.SubscribeWithBuffer(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.Publish(engine.Event{Kind: engine.KindSample, Data: sampleAt(float64(i))})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("publish blocked on slow consumer")
	}

	received := 0
	timeout := time.After(1 * time.Second)
	for received < 50 {
		select {
		case ev := <-fast:
			require.False(t, ev.Timestamp.IsZero())
			received++
		case <-timeout:
			t.Fatalf("fast consumer timeout after %d events", received)
		}
	}

	count := 0
	for {
		select {
		case <-slow:
			count++
		default:
			if count > 1 {
				t.Fatalf("slow consumer received %d events, expected at most 1", count)
			}
			return
		}
	}
}

func TestHubTryPublishWithoutRunner(t *testing.T) {
	hub := engine.NewHub(engine.WithBroadcastBuffer(1))
	require.True(t, hub.TryPublish(engine.Event{Kind: engine.KindGesture}))
	require.False(t, hub.TryPublish(engine.Event{Kind: engine.KindGesture}))
}

func TestHubSubscribeAfterRunExits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := engine.NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	sub := hub.Subscribe()
	cancel()
	<-done

	_, ok := <-sub
	require.False(t, ok, "subscription must be closed when the hub stops")

	late := hub.Subscribe()
	_, ok = <-late
	require.False(t, ok)
	hub.Unsubscribe(late)
}
