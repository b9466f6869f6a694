package mockdsu

import (
	"math"
	"sync"
	"time"

	"github.com/fogleman/ease"

	"dsumotion/pkg/protocol"
)

// Frame is one pad-data reply. Delay is waited before the reply is sent.
type Frame struct {
	Accel protocol.Vec3
	Gyro  protocol.Vec3
	Delay time.Duration
}

// Source produces the reply to the seq-th pad-data request. Returning false
// leaves the request unanswered.
type Source interface {
	Next(seq uint32, elapsed time.Duration) (Frame, bool)
}

type SourceFunc func(seq uint32, elapsed time.Duration) (Frame, bool)

func (f SourceFunc) Next(seq uint32, elapsed time.Duration) (Frame, bool) {
	return f(seq, elapsed)
}

// Script replays frames once, in order, then goes silent.
func Script(frames ...Frame) Source {
	return &script{frames: frames}
}

type script struct {
	mu     sync.Mutex
	frames []Frame
	next   int
}

func (s *script) Next(uint32, time.Duration) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.frames) {
		return Frame{}, false
	}
	f := s.frames[s.next]
	s.next++
	return f, true
}

const (
	swayAmplitude = 0.2

	rollRateDeg  = 35.0
	pitchRateDeg = 25.0
	yawRateDeg   = 40.0

	rollFreqHz  = 0.23
	pitchFreqHz = 0.31
	yawFreqHz   = 0.17

	pitchPhaseRad = math.Pi / 3.0
	yawPhaseRad   = 2.0 * math.Pi / 3.0
)

// Wave is a gravity-free motion profile: a slow sinusoidal sway with a
// gesture burst every Every. Bursts cycle through forward, right, backward,
// left swings and a shake.
type Wave struct {
	Rate  int
	Every time.Duration
	Burst time.Duration
	Peak  float32
}

func DefaultWave() Wave {
	return Wave{
		Rate:  60,
		Every: 2 * time.Second,
		Burst: 300 * time.Millisecond,
		Peak:  3.5,
	}
}

var burstAxes = [...]protocol.Vec3{
	{Z: 1},
	{X: 1},
	{Z: -1},
	{X: -1},
}

func (w Wave) Next(seq uint32, elapsed time.Duration) (Frame, bool) {
	rate := w.Rate
	if rate <= 0 {
		rate = 60
	}
	t := elapsed.Seconds()

	accel := protocol.Vec3{
		X: float32(swayAmplitude * math.Sin(2*math.Pi*rollFreqHz*t)),
		Y: float32(swayAmplitude * math.Sin(2*math.Pi*pitchFreqHz*t+pitchPhaseRad)),
		Z: float32(swayAmplitude * math.Sin(2*math.Pi*yawFreqHz*t+yawPhaseRad)),
	}
	gyro := protocol.Vec3{
		X: float32(rollRateDeg * math.Cos(2*math.Pi*rollFreqHz*t)),
		Y: float32(pitchRateDeg * math.Cos(2*math.Pi*pitchFreqHz*t+pitchPhaseRad)),
		Z: float32(yawRateDeg * math.Cos(2*math.Pi*yawFreqHz*t+yawPhaseRad)),
	}

	if w.Every > 0 && w.Burst > 0 && w.Burst < w.Every {
		n := int(elapsed / w.Every)
		into := elapsed - time.Duration(n)*w.Every
		if n > 0 && into < w.Burst {
			p := float64(into) / float64(w.Burst)
			accel = accel.Add(w.burst(n, seq, p))
		}
	}

	return Frame{Accel: accel, Gyro: gyro, Delay: time.Second / time.Duration(rate)}, true
}

// burst is the n-th gesture at phase p in [0, 1).
func (w Wave) burst(n int, seq uint32, p float64) protocol.Vec3 {
	kind := (n - 1) % (len(burstAxes) + 1)
	if kind == len(burstAxes) {
		sign := float32(1)
		if seq%2 == 1 {
			sign = -1
		}
		return protocol.Vec3{X: sign * w.Peak}
	}
	envelope := float32(ease.InOutQuad(1 - math.Abs(2*p-1)))
	return burstAxes[kind].Scale(w.Peak * envelope)
}
