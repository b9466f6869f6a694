package logger

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"dsumotion/pkg/engine"
	"dsumotion/pkg/gesture"
	"dsumotion/pkg/protocol"
	"dsumotion/pkg/transport"
)

// JSONLWriter writes one JSON object per hub event. Samples are skipped
// unless enabled, they arrive at the pad rate.
type JSONLWriter struct {
	enc     *json.Encoder
	samples bool
	written int
}

type jsonRecord struct {
	TS    string           `json:"ts"`
	Kind  engine.EventKind `json:"kind"`
	Label string           `json:"label,omitempty"`
	Data  any              `json:"data,omitempty"`
}

func NewJSONLWriter(w io.Writer, samples bool) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{
		enc:     enc,
		samples: samples,
	}
}

func (j *JSONLWriter) Consume(ctx context.Context, in <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			_ = j.Write(ev)
		}
	}
}

// Write encodes a single event. Filtered events return nil.
func (j *JSONLWriter) Write(ev engine.Event) error {
	if ev.Kind == engine.KindSample && !j.samples {
		return nil
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := jsonRecord{
		TS:    ts.UTC().Format(time.RFC3339Nano),
		Kind:  ev.Kind,
		Label: label(ev),
		Data:  ev.Data,
	}
	if err := j.enc.Encode(rec); err != nil {
		return err
	}
	j.written++
	return nil
}

func (j *JSONLWriter) Written() int {
	return j.written
}

func label(ev engine.Event) string {
	switch v := ev.Data.(type) {
	case gesture.Event:
		return v.Kind.String()
	case gesture.Throw:
		return gesture.BowlingSwing.String()
	case transport.Lifecycle:
		return v.State.String()
	case protocol.MotionSample:
		if !v.Connected {
			return "stale"
		}
	}
	return ""
}
