package mqtt_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"dsumotion/pkg/bridge/mqtt"
	"dsumotion/pkg/engine"
	"dsumotion/pkg/gesture"
	"dsumotion/pkg/protocol"
	"dsumotion/pkg/transport"
)

type fakeToken struct {
	paho.Token
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []message
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, message{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if p.token != nil {
		return p.token
	}
	return &fakeToken{done: true}
}

func (p *fakePublisher) messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.msgs...)
}

func TestSinkRoutesByKind(t *testing.T) {
	pub := &fakePublisher{}
	sink := mqtt.NewSink(pub, "home/pad/", 1, mqtt.WithLogger(slogt.New(t)))

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Handle(engine.Event{Kind: engine.KindGesture, Timestamp: ts, Data: gesture.Event{Kind: gesture.Shake, Intensity: 1}}))
	require.NoError(t, sink.Handle(engine.Event{Kind: engine.KindThrow, Timestamp: ts, Data: gesture.Throw{Force: 2}}))
	require.NoError(t, sink.Handle(engine.Event{Kind: engine.KindLifecycle, Timestamp: ts, Data: transport.Lifecycle{State: transport.Connected}}))
	require.NoError(t, sink.Handle(engine.Event{Kind: engine.KindSample, Timestamp: ts, Data: protocol.MotionSample{}}))

	msgs := pub.messages()
	require.Len(t, msgs, 3)

	require.Equal(t, "home/pad/gesture", msgs[0].topic)
	require.Equal(t, byte(1), msgs[0].qos)
	require.False(t, msgs[0].retained)
	require.Equal(t, "home/pad/throw", msgs[1].topic)
	require.Equal(t, "home/pad/lifecycle", msgs[2].topic)
	require.True(t, msgs[2].retained)

	var rec struct {
		TS    string         `json:"ts"`
		Label string         `json:"label"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &rec))
	require.Equal(t, "shake", rec.Label)
	require.Equal(t, "2026-03-01T12:00:00Z", rec.TS)
	require.Equal(t, 1.0, rec.Data["intensity"])

	require.NoError(t, json.Unmarshal(msgs[1].payload, &rec))
	require.Equal(t, "bowling_swing", rec.Label)
}

func TestSinkSamplesOptIn(t *testing.T) {
	pub := &fakePublisher{}
	sink := mqtt.NewSink(pub, "dsu", 0, mqtt.WithSamples(true))

	require.NoError(t, sink.Handle(engine.Event{Kind: engine.KindSample, Data: protocol.MotionSample{Connected: true}}))
	msgs := pub.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "dsu/motion", msgs[0].topic)
}

func TestSinkPublishErrors(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: false}}
	sink := mqtt.NewSink(pub, "dsu", 0, mqtt.WithPublishTimeout(time.Millisecond))

	err := sink.Handle(engine.Event{Kind: engine.KindGesture, Data: gesture.Event{}})
	require.ErrorIs(t, err, mqtt.ErrPublishTimeout)

	brokerErr := errors.New("not connected")
	pub.token = &fakeToken{done: true, err: brokerErr}
	err = sink.Handle(engine.Event{Kind: engine.KindGesture, Data: gesture.Event{}})
	require.ErrorIs(t, err, brokerErr)
}

func TestSinkConsume(t *testing.T) {
	pub := &fakePublisher{}
	sink := mqtt.NewSink(pub, "dsu", 0)

	in := make(chan engine.Event, 2)
	in <- engine.Event{Kind: engine.KindGesture, Data: gesture.Event{Kind: gesture.SwingForward}}
	in <- engine.Event{Kind: engine.KindLifecycle, Data: transport.Lifecycle{State: transport.Disconnected, Reason: "timeout"}}
	close(in)

	sink.Consume(context.Background(), in)
	require.Len(t, pub.messages(), 2)
}
