// Package transport is the DSU client side: one UDP socket per connection,
// a receive goroutine that polls the server for pad data, and a bounded
// SampleQueue as the only state shared with the application.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"dsumotion/pkg/config"
	"dsumotion/pkg/engine"
	"dsumotion/pkg/protocol"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Lifecycle is reported on every transition to Connected or Disconnected.
type Lifecycle struct {
	State  State     `json:"state"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

const (
	ReasonRequested = "requested"
	ReasonTimeout   = "timeout"
)

var ErrConnect = errors.New("dsu connect failed")

var errNilConfig = errors.New("dsu: nil config")

// ConnectError is returned by Connect when the address cannot be resolved
// or the socket cannot be opened. It matches ErrConnect with errors.Is.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("dsu connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnect, e.Err}
}

// Stats are running counters over the lifetime of the session.
type Stats struct {
	Datagrams uint64
	Samples   uint64
	Dropped   uint64
	Polls     uint64
}

type Session struct {
	cfg           config.Holder
	queue         *engine.SampleQueue
	log           *slog.Logger
	onLifecycle   []func(Lifecycle)
	now           func() time.Time
	pollInterval  time.Duration
	joinTimeout   time.Duration
	forceChecksum bool
	clientID      uint32
	readBuf       int
	wrapConn      func(net.Conn) net.Conn

	state atomic.Int32

	mu   sync.Mutex
	link *link

	datagrams atomic.Uint64
	samples   atomic.Uint64
	dropped   atomic.Uint64
	polls     atomic.Uint64
}

// link is one connection. Everything the receive loop touches hangs off it,
// so a stale loop from a previous Connect can never affect a newer one.
type link struct {
	conn    net.Conn
	addr    string
	started time.Time
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (l *link) halt() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	_ = l.conn.Close()
}

func (l *link) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// NewSession builds a disconnected session that pushes decoded samples into
// queue. cfg is validated and copied; a nil cfg means config.Default().
func NewSession(cfg *config.Config, queue *engine.SampleQueue, opts ...Option) (*Session, error) {
	def := config.Default()
	if cfg == nil {
		cfg = &def
	}
	s := &Session{
		log:          slog.New(slog.DiscardHandler),
		now:          time.Now,
		pollInterval: 100 * time.Millisecond,
		joinTimeout:  2 * time.Second,
		clientID:     rand.Uint32(),
		readBuf:      2048,
	}
	if err := s.cfg.Swap(*cfg); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = engine.NewSampleQueue(cfg.SampleQueueSize)
	}
	s.queue = queue
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("sys", "dsu", "client_id", s.clientID)
	return s, nil
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) ClientID() uint32 {
	return s.clientID
}

func (s *Session) Queue() *engine.SampleQueue {
	return s.queue
}

// SetConfig validates cfg and swaps a copy of it into the receive loop. The
// pad slot and checksum setting apply from the next datagram. An invalid cfg
// leaves the current snapshot in place.
func (s *Session) SetConfig(cfg *config.Config) error {
	if cfg == nil {
		return errNilConfig
	}
	return s.cfg.Swap(*cfg)
}

func (s *Session) Config() *config.Config {
	return s.cfg.Load()
}

func (s *Session) Stats() Stats {
	return Stats{
		Datagrams: s.datagrams.Load(),
		Samples:   s.samples.Load(),
		Dropped:   s.dropped.Load(),
		Polls:     s.polls.Load(),
	}
}

// ConnectConfigured connects to ServerAddress:ServerPort of the current config.
func (s *Session) ConnectConfigured(ctx context.Context) error {
	return s.Connect(ctx, s.cfg.Load().Endpoint())
}

// Connect opens a UDP socket to addr, starts the receive loop and sends a
// VersionRequest. It does not wait for the server: the Connected lifecycle
// event reports the handshake. Calling Connect on an active session is a
// no-op.
func (s *Session) Connect(ctx context.Context, addr string) error {
	s.mu.Lock()
	active := s.link != nil
	s.mu.Unlock()
	if active {
		s.log.Warn("Connect ignored, session already active", "state", s.State(), "addr", addr)
		return nil
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return &ConnectError{Addr: addr, Err: err}
	}
	if _, ok := c.(*net.UDPConn); !ok {
		_ = c.Close()
		return &ConnectError{Addr: addr, Err: fmt.Errorf("unexpected conn type %T", c)}
	}
	conn := c
	if s.wrapConn != nil {
		conn = s.wrapConn(conn)
	}

	l := &link{
		conn:    conn,
		addr:    addr,
		started: s.now(),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.link != nil {
		s.mu.Unlock()
		_ = conn.Close()
		s.log.Warn("Connect ignored, session already active", "state", s.State(), "addr", addr)
		return nil
	}
	s.link = l
	s.state.Store(int32(Connecting))
	s.mu.Unlock()

	s.log.Info("Connecting", "addr", addr, "local", conn.LocalAddr().String())
	go s.receiveLoop(l)
	s.send(l, protocol.VersionRequest(s.clientID))
	return nil
}

// Disconnect stops the receive loop and closes the socket. No sample is
// pushed to the queue once it returns. Safe to call repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	l := s.link
	if l != nil {
		s.link = nil
		s.state.Store(int32(Disconnected))
	}
	s.mu.Unlock()
	if l == nil {
		return
	}

	l.halt()
	timer := time.NewTimer(s.joinTimeout)
	select {
	case <-l.done:
	case <-timer.C:
		s.log.Warn("Receive loop did not stop in time", "timeout", s.joinTimeout)
	}
	timer.Stop()

	s.log.Info("Disconnected", "addr", l.addr, "reason", ReasonRequested)
	s.emit(Lifecycle{State: Disconnected, Reason: ReasonRequested, At: s.now()})
}

func (s *Session) Close() error {
	s.Disconnect()
	return nil
}

// drop is the implicit disconnect taken by the receive loop itself.
func (s *Session) drop(l *link, reason string) {
	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}
	s.link = nil
	s.state.Store(int32(Disconnected))
	s.mu.Unlock()

	l.halt()
	s.log.Warn("Disconnected", "addr", l.addr, "reason", reason)
	s.emit(Lifecycle{State: Disconnected, Reason: reason, At: s.now()})
}

func (s *Session) receiveLoop(l *link) {
	defer close(l.done)

	buf := make([]byte, s.readBuf)
	for {
		if l.isStopped() {
			return
		}
		if s.State() == Connecting {
			if timeout := s.cfg.Load().ConnectTimeout(); s.now().Sub(l.started) >= timeout {
				s.drop(l, ReasonTimeout)
				return
			}
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(s.pollInterval))
		n, err := l.conn.Read(buf)
		if err != nil {
			if l.isStopped() {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				s.idle(l)
				continue
			}
			if errors.Is(err, syscall.ECONNREFUSED) {
				s.log.Debug("Server unreachable", "addr", l.addr)
				continue
			}
			s.drop(l, err.Error())
			return
		}
		s.handleDatagram(l, buf[:n])
	}
}

func (s *Session) idle(l *link) {
	if s.State() == Connected {
		s.poll(l)
	}
}

func (s *Session) handleDatagram(l *link, data []byte) {
	s.datagrams.Add(1)
	cfg := s.cfg.Load()

	if s.forceChecksum || cfg.ValidateChecksum {
		if err := protocol.Verify(data); err != nil {
			s.discard("checksum", err)
			return
		}
	}
	pkt, err := protocol.Decode(data)
	if err != nil {
		s.discard("decode", err)
		return
	}
	if !pkt.FromServer() {
		s.discard("magic", protocol.ErrBadMagic)
		return
	}
	if l.isStopped() {
		return
	}

	switch pkt.MessageType {
	case protocol.MessageVersion:
		if s.state.CompareAndSwap(int32(Connecting), int32(Connected)) {
			s.log.Info("Connected", "addr", l.addr, "server_id", pkt.ClientID)
			s.emit(Lifecycle{State: Connected, At: s.now()})
			s.poll(l)
		}
	case protocol.MessagePortInfo:
		s.poll(l)
	case protocol.MessagePadData:
		sample, err := protocol.DecodePadData(pkt.Payload, s.timestamp())
		if err != nil {
			s.discard("pad data", err)
			return
		}
		if !s.push(l, sample) {
			return
		}
		s.poll(l)
	default:
		s.log.Debug("Ignoring message", "type", pkt.MessageType)
	}
}

func (s *Session) push(l *link, sample protocol.MotionSample) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	s.queue.Push(sample)
	s.samples.Add(1)
	return true
}

func (s *Session) poll(l *link) {
	pad := uint8(s.cfg.Load().PadID)
	s.polls.Add(1)
	s.send(l, protocol.PadDataRequest(s.clientID, pad))
}

func (s *Session) send(l *link, pkt []byte) {
	if _, err := l.conn.Write(pkt); err != nil && !l.isStopped() {
		s.log.Debug("Send failed", "addr", l.addr, "err", err)
	}
}

func (s *Session) discard(stage string, err error) {
	s.dropped.Add(1)
	s.log.Debug("Dropping datagram", "stage", stage, "err", err)
}

func (s *Session) timestamp() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}

func (s *Session) emit(ev Lifecycle) {
	for _, fn := range s.onLifecycle {
		fn(ev)
	}
}
