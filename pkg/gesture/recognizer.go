// Package gesture turns a stream of motion samples into discrete gestures
// and a continuous throw signal.
//
// Three detectors share one sliding window and one cooldown: once any of
// them fires, none fires again until GestureTimeoutSeconds have passed.
// A directional swing only starts while the cooldown is open, and the sport
// swing is not evaluated while a directional swing is in progress. Since a
// sample above SwingThreshold starts a swing, at default thresholds a throw
// needs a forward component in (BowlingMinVelocity, SwingThreshold] with a
// total magnitude of at most SwingThreshold.
package gesture

import (
	"errors"
	"log/slog"
	"math"

	"dsumotion/pkg/config"
	"dsumotion/pkg/protocol"
)

const (
	minSwingDuration = 0.1
	maxSwingDuration = 1.0
	swingReleaseFrac = 0.5
)

var errNilConfig = errors.New("gesture: nil config")

var (
	forwardAxis = protocol.Vec3{Z: 1}
	rightAxis   = protocol.Vec3{X: 1}
)

// Recognizer is driven from a single consumer goroutine: Process and Reset
// must not run concurrently. SetConfig may be called from anywhere.
type Recognizer struct {
	cfg       config.Holder
	log       *slog.Logger
	onGesture []func(Event)
	onThrow   []func(Throw)

	window          *Window
	lastGesture     float64
	swinging        bool
	swingStartAccel protocol.Vec3
	swingStartTime  float64
}

type Option func(*Recognizer)

func WithGestureHandler(fn func(Event)) Option {
	return func(r *Recognizer) {
		if fn != nil {
			r.onGesture = append(r.onGesture, fn)
		}
	}
}

func WithThrowHandler(fn func(Throw)) Option {
	return func(r *Recognizer) {
		if fn != nil {
			r.onThrow = append(r.onThrow, fn)
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Recognizer) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRecognizer validates cfg and keeps a copy of it as the initial
// snapshot; a nil cfg means config.Default().
func NewRecognizer(cfg *config.Config, opts ...Option) (*Recognizer, error) {
	def := config.Default()
	if cfg == nil {
		cfg = &def
	}
	r := &Recognizer{
		log:         slog.New(slog.DiscardHandler),
		lastGesture: math.Inf(-1),
	}
	if err := r.cfg.Swap(*cfg); err != nil {
		return nil, err
	}
	r.window = NewWindow(r.cfg.Load().MotionHistorySize)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SetConfig validates cfg and swaps in a copy of it. An invalid cfg leaves
// the current snapshot in place. A changed MotionHistorySize takes effect on
// the next Process call and starts from an empty window.
func (r *Recognizer) SetConfig(cfg *config.Config) error {
	if cfg == nil {
		return errNilConfig
	}
	return r.cfg.Swap(*cfg)
}

func (r *Recognizer) Config() *config.Config {
	return r.cfg.Load()
}

// Reset clears the window, the cooldown and any swing in progress.
func (r *Recognizer) Reset() {
	r.window.Clear()
	r.lastGesture = math.Inf(-1)
	r.swinging = false
	r.swingStartAccel = protocol.Vec3{}
	r.swingStartTime = 0
}

func (r *Recognizer) WindowLen() int {
	return r.window.Len()
}

// Swinging reports whether a directional swing has started but not finished.
func (r *Recognizer) Swinging() bool {
	return r.swinging
}

// Process feeds one sample through the detectors. Samples from a
// disconnected pad and samples with non-finite values are ignored.
func (r *Recognizer) Process(s protocol.MotionSample) {
	if !s.Connected || math.IsNaN(s.Timestamp) || math.IsInf(s.Timestamp, 0) {
		return
	}

	cfg := r.cfg.Load()
	if cfg.MotionSensitivity != 1 {
		s.Accelerometer = s.Accelerometer.Scale(float32(cfg.MotionSensitivity))
	}
	if !s.Accelerometer.IsFinite() {
		r.log.Debug("Ignoring non-finite sample", "accel", s.Accelerometer)
		return
	}
	if r.window.Cap() != cfg.MotionHistorySize {
		r.window = NewWindow(cfg.MotionHistorySize)
	}

	r.window.Push(s)

	r.detectDirectionalSwing(cfg, s)
	r.detectShake(cfg, s)
	r.detectSportSwing(cfg, s)
}

func (r *Recognizer) cooldownOpen(cfg *config.Config, ts float64) bool {
	return ts-r.lastGesture >= cfg.GestureTimeoutSeconds
}

func (r *Recognizer) detectDirectionalSwing(cfg *config.Config, s protocol.MotionSample) {
	accel := s.Accelerometer
	mag := accel.Magnitude()
	threshold := float32(cfg.SwingThreshold)

	if !r.swinging {
		if mag > threshold && r.cooldownOpen(cfg, s.Timestamp) {
			r.swinging = true
			r.swingStartAccel = accel
			r.swingStartTime = s.Timestamp
		}
		return
	}

	elapsed := s.Timestamp - r.swingStartTime
	if elapsed < minSwingDuration {
		return
	}
	if mag >= threshold*swingReleaseFrac && elapsed <= maxSwingDuration {
		return
	}

	r.swinging = false
	if !r.cooldownOpen(cfg, s.Timestamp) {
		return
	}

	// The swing points where the acceleration was released: start minus end.
	direction := r.swingStartAccel.Sub(accel).Normalize()
	intensity := clamp01((r.swingStartAccel.Magnitude() - threshold) / threshold)

	r.emitGesture(Event{
		Kind:      classifySwing(direction),
		Intensity: intensity,
		Direction: direction,
		Timestamp: s.Timestamp,
	})
}

func (r *Recognizer) detectShake(cfg *config.Config, s protocol.MotionSample) {
	if r.window.Len() < 3 {
		return
	}
	mean := r.window.MeanDelta()
	threshold := float32(cfg.ShakeThreshold)
	if mean <= threshold || !r.cooldownOpen(cfg, s.Timestamp) {
		return
	}
	r.emitGesture(Event{
		Kind:      Shake,
		Intensity: clamp01(mean / threshold),
		Timestamp: s.Timestamp,
	})
}

func (r *Recognizer) detectSportSwing(cfg *config.Config, s protocol.MotionSample) {
	if r.swinging {
		return
	}

	forward := s.Accelerometer.Dot(forwardAxis)
	right := s.Accelerometer.Dot(rightAxis)
	minVelocity := float32(cfg.BowlingMinVelocity)
	if forward <= minVelocity {
		return
	}

	angle := math.Atan2(float64(right), float64(forward)) * 180 / math.Pi
	if math.Abs(angle) > cfg.BowlingMaxAngleDegrees {
		return
	}
	if !r.cooldownOpen(cfg, s.Timestamp) {
		return
	}

	force := forward / minVelocity * float32(cfg.MotionForceMultiplier)
	force = clamp(force, float32(cfg.MinThrowForce), float32(cfg.MaxThrowForce))

	r.lastGesture = s.Timestamp
	t := Throw{
		Direction: protocol.Vec3{X: right, Y: 0, Z: forward}.Normalize(),
		Force:     force,
		Timestamp: s.Timestamp,
	}
	r.log.Debug("Throw", "force", t.Force, "angle", angle)
	for _, fn := range r.onThrow {
		fn(t)
	}
}

func (r *Recognizer) emitGesture(ev Event) {
	r.lastGesture = ev.Timestamp
	r.log.Debug("Gesture", "kind", ev.Kind, "intensity", ev.Intensity)
	for _, fn := range r.onGesture {
		fn(ev)
	}
}

// classifySwing picks the dominant axis, preferring z, then x; a vector
// dominated by y counts as forward.
func classifySwing(v protocol.Vec3) Kind {
	ax, ay, az := abs32(v.X), abs32(v.Y), abs32(v.Z)
	switch {
	case az >= ax && az >= ay:
		if v.Z < 0 {
			return SwingBackward
		}
		return SwingForward
	case ax >= ay:
		if v.X < 0 {
			return SwingLeft
		}
		return SwingRight
	default:
		return SwingForward
	}
}

func clamp01(v float32) float32 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
