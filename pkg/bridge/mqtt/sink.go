// Package mqtt republishes hub events to an MQTT broker as JSON, one topic
// per event kind under a common prefix.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	paho "github.com/eclipse/paho.mqtt.golang"

	"dsumotion/pkg/config"
	"dsumotion/pkg/engine"
	"dsumotion/pkg/gesture"
	"dsumotion/pkg/transport"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the subset of paho's mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Sink struct {
	pub     Publisher
	prefix  string
	qos     byte
	samples bool
	timeout time.Duration
	log     *slog.Logger
}

type Option func(*Sink)

func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSamples also publishes every motion sample to <prefix>/motion.
func WithSamples(enabled bool) Option {
	return func(s *Sink) {
		s.samples = enabled
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSink(pub Publisher, prefix string, qos byte, opts ...Option) *Sink {
	s := &Sink{
		pub:     pub,
		prefix:  strings.TrimRight(prefix, "/"),
		qos:     qos,
		timeout: 2 * time.Second,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("sys", "mqtt")
	return s
}

// Dial connects a paho client for the [mqtt] config section, waiting at most
// timeout for the broker. An empty client id gets a random pet name.
func Dial(cfg config.MQTTConfig, timeout time.Duration, log *slog.Logger) (paho.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "dsumotion-" + petname.Generate(2, "-")
	}
	options := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(paho.Client) {
			if log != nil {
				log.Info("MQTT connected", "broker", cfg.URL, "client_id", clientID)
			}
		})
	client := paho.NewClient(options)

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.URL, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.URL, err)
	}
	return client, nil
}

type record struct {
	TS    string `json:"ts"`
	Label string `json:"label,omitempty"`
	Data  any    `json:"data"`
}

func (s *Sink) Consume(ctx context.Context, in <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if err := s.Handle(ev); err != nil {
				s.log.Warn("Publish failed", "kind", ev.Kind, "err", err)
			}
		}
	}
}

// Handle publishes one event. Lifecycle events are retained so a late
// subscriber sees the current connection state.
func (s *Sink) Handle(ev engine.Event) error {
	topic, label, retained, ok := s.route(ev)
	if !ok {
		return nil
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	payload, err := json.Marshal(record{
		TS:    ts.UTC().Format(time.RFC3339Nano),
		Label: label,
		Data:  ev.Data,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}

	token := s.pub.Publish(topic, s.qos, retained, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	return nil
}

func (s *Sink) route(ev engine.Event) (topic, label string, retained, ok bool) {
	switch data := ev.Data.(type) {
	case gesture.Event:
		return s.prefix + "/gesture", data.Kind.String(), false, true
	case gesture.Throw:
		return s.prefix + "/throw", gesture.BowlingSwing.String(), false, true
	case transport.Lifecycle:
		return s.prefix + "/lifecycle", data.State.String(), true, true
	}
	if ev.Kind == engine.KindSample && s.samples {
		return s.prefix + "/motion", "", false, true
	}
	return "", "", false, false
}
