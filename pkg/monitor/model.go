// Package monitor is a terminal dashboard for a running session: link
// state, the live sample, and the most recent gestures and throws.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fogleman/ease"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"dsumotion/pkg/engine"
	"dsumotion/pkg/gesture"
	"dsumotion/pkg/protocol"
	"dsumotion/pkg/transport"
)

const (
	refreshInterval = 100 * time.Millisecond
	historySize     = 8
	barWidth        = 24
)

// EventMsg carries one hub event into the program.
type EventMsg engine.Event

type tickMsg time.Time

type Model struct {
	title   string
	profile termenv.Profile
	now     func() time.Time
	fade    time.Duration
	maxG    float32

	state   transport.State
	reason  string
	sample  protocol.MotionSample
	samples uint64

	gesture   gesture.Event
	gestureAt time.Time
	throw     gesture.Throw
	throwAt   time.Time
	history   []string
}

type Option func(*Model)

// WithProfile sets the colour profile; tests use termenv.Ascii.
func WithProfile(p termenv.Profile) Option {
	return func(m *Model) {
		m.profile = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithFade sets how long a gesture stays highlighted.
func WithFade(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.fade = d
		}
	}
}

func New(title string, opts ...Option) Model {
	m := Model{
		title:   title,
		profile: termenv.ColorProfile(),
		now:     time.Now,
		fade:    1500 * time.Millisecond,
		maxG:    4,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.history = nil
		}
	case tickMsg:
		return m, tick()
	case EventMsg:
		m.apply(engine.Event(msg))
	}
	return m, nil
}

func (m *Model) apply(ev engine.Event) {
	at := ev.Timestamp
	if at.IsZero() {
		at = m.now()
	}
	switch data := ev.Data.(type) {
	case transport.Lifecycle:
		m.state = data.State
		m.reason = data.Reason
		line := data.State.String()
		if data.Reason != "" {
			line += " (" + data.Reason + ")"
		}
		m.remember(at, line)
	case protocol.MotionSample:
		m.sample = data
		m.samples++
	case gesture.Event:
		m.gesture = data
		m.gestureAt = at
		m.remember(at, fmt.Sprintf("%s %.2f", data.Kind, data.Intensity))
	case gesture.Throw:
		m.throw = data
		m.throwAt = at
		m.remember(at, fmt.Sprintf("%s force %.2f", gesture.BowlingSwing, data.Force))
	}
}

func (m *Model) remember(at time.Time, line string) {
	m.history = append(m.history, at.Format("15:04:05.000")+"  "+line)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.paint(m.title, "#8abeb7", true))
	b.WriteString("  ")
	b.WriteString(m.paint(m.state.String(), stateColor(m.state), true))
	if m.state == transport.Disconnected && m.reason != "" {
		b.WriteString(" " + m.reason)
	}
	b.WriteString("\n\n")

	a := m.sample.Accelerometer
	g := m.sample.Gyroscope
	fmt.Fprintf(&b, "accel  x %+6.2f  y %+6.2f  z %+6.2f  |a| %5.2f g\n", a.X, a.Y, a.Z, a.Magnitude())
	fmt.Fprintf(&b, "gyro   x %+7.1f y %+7.1f z %+7.1f  deg/s\n", g.X, g.Y, g.Z)
	fmt.Fprintf(&b, "       %s  %d samples\n\n", m.bar(a.Magnitude()), m.samples)

	b.WriteString("gesture  ")
	if m.gestureAt.IsZero() {
		b.WriteString("-")
	} else {
		heat := m.heat(m.gestureAt, m.gesture.Intensity)
		b.WriteString(m.paint(fmt.Sprintf("%-15s %.2f", m.gesture.Kind, m.gesture.Intensity), blend(kindHue(m.gesture.Kind), heat), heat > 0.5))
	}
	b.WriteString("\nthrow    ")
	if m.throwAt.IsZero() {
		b.WriteString("-")
	} else {
		heat := m.heat(m.throwAt, 1)
		b.WriteString(m.paint(fmt.Sprintf("force %.2f", m.throw.Force), blend(30, heat), heat > 0.5))
	}
	b.WriteString("\n\n")

	for _, line := range m.history {
		b.WriteString(m.paint(line, "#969896", false))
		b.WriteString("\n")
	}
	b.WriteString("\nq quit  c clear\n")
	return b.String()
}

// heat fades from intensity to zero over the fade window.
func (m Model) heat(at time.Time, intensity float32) float64 {
	elapsed := m.now().Sub(at)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= m.fade {
		return 0
	}
	p := float64(elapsed) / float64(m.fade)
	return float64(intensity) * (1 - ease.OutCubic(p))
}

func (m Model) bar(v float32) string {
	n := int(v / m.maxG * barWidth)
	n = min(max(n, 0), barWidth)
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", barWidth-n) + "]"
}

func (m Model) paint(s, hex string, bold bool) string {
	out := m.profile.String(s).Foreground(m.profile.Color(hex))
	if bold {
		out = out.Bold()
	}
	return out.String()
}

func stateColor(s transport.State) string {
	switch s {
	case transport.Connected:
		return "#b5bd68"
	case transport.Connecting:
		return "#f0c674"
	default:
		return "#cc6666"
	}
}

func kindHue(k gesture.Kind) float64 {
	switch k {
	case gesture.SwingForward:
		return 140
	case gesture.SwingBackward:
		return 200
	case gesture.SwingLeft:
		return 260
	case gesture.SwingRight:
		return 320
	case gesture.Shake:
		return 60
	default:
		return 30
	}
}

// blend moves from a neutral grey toward the hue as heat goes to 1.
func blend(hue, heat float64) string {
	idle, _ := colorful.Hex("#707070")
	hot := colorful.Hcl(hue, 0.9, 0.7).Clamped()
	return idle.BlendLab(hot, heat).Clamped().Hex()
}
