package gesture

import (
	"fmt"

	"dsumotion/pkg/protocol"
)

type Kind int

const (
	SwingForward Kind = iota
	SwingBackward
	SwingLeft
	SwingRight
	Shake
	BowlingSwing
)

var kindNames = [...]string{
	SwingForward:  "swing_forward",
	SwingBackward: "swing_backward",
	SwingLeft:     "swing_left",
	SwingRight:    "swing_right",
	Shake:         "shake",
	BowlingSwing:  "bowling_swing",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown gesture kind %q", b)
}

// Event is a discrete, debounced gesture. Intensity is in [0, 1].
type Event struct {
	Kind      Kind          `json:"kind"`
	Intensity float32       `json:"intensity"`
	Direction protocol.Vec3 `json:"direction"`
	Timestamp float64       `json:"ts"`
}

// Throw is the continuous sport-swing signal: a unit direction in the
// right/forward plane and a force clamped to the configured range.
type Throw struct {
	Direction protocol.Vec3 `json:"direction"`
	Force     float32       `json:"force"`
	Timestamp float64       `json:"ts"`
}
