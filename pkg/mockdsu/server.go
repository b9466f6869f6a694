// Package mockdsu is a small DSU server for tests and demos. It answers
// version, port-info and pad-data requests on one UDP socket, taking motion
// from a Source.
package mockdsu

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	petname "github.com/dustinkirkland/golang-petname"

	"dsumotion/pkg/protocol"
)

type Server struct {
	conn     *net.UDPConn
	source   Source
	log      *slog.Logger
	name     string
	serverID uint32
	pad      uint8

	versionDelay  time.Duration
	ignoreVersion bool

	start time.Time
	seq   atomic.Uint32

	mu       sync.Mutex
	requests map[protocol.MessageType]int
	client   *net.UDPAddr

	closeOnce sync.Once
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
	}
}

func WithPad(pad uint8) Option {
	return func(s *Server) {
		s.pad = pad
	}
}

// WithVersionDelay holds the version reply back by d.
func WithVersionDelay(d time.Duration) Option {
	return func(s *Server) {
		s.versionDelay = d
	}
}

// WithoutVersion never answers version requests, so clients stay Connecting.
func WithoutVersion() Option {
	return func(s *Server) {
		s.ignoreVersion = true
	}
}

// Listen binds addr (use "127.0.0.1:0" for an ephemeral port). A nil source
// means DefaultWave().
func Listen(addr string, source Source, opts ...Option) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if source == nil {
		source = DefaultWave()
	}
	s := &Server{
		conn:     conn,
		source:   source,
		log:      slog.New(slog.DiscardHandler),
		name:     petname.Generate(2, "-"),
		serverID: rand.Uint32(),
		requests: make(map[protocol.MessageType]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("sys", "mockdsu", "name", s.name)
	return s, nil
}

func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

func (s *Server) Name() string {
	return s.name
}

func (s *Server) ServerID() uint32 {
	return s.serverID
}

// Requests counts the client requests received for t.
func (s *Server) Requests(t protocol.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[t]
}

// Client is the address of the last client that sent a valid request.
func (s *Server) Client() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// SendRaw writes b to the last client as is.
func (s *Server) SendRaw(b []byte) error {
	to := s.Client()
	if to == nil {
		return errors.New("mockdsu: no client yet")
	}
	_, err := s.conn.WriteToUDP(b, to)
	return err
}

// Serve answers requests until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	s.start = time.Now()
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.log.Info("Serving", "addr", s.Addr())
	buf := make([]byte, 2048)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.handle(ctx, buf[:n], from)
	}
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func (s *Server) handle(ctx context.Context, data []byte, from *net.UDPAddr) {
	pkt, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug("Dropping request", "err", err)
		return
	}
	if pkt.FromServer() {
		return
	}

	s.mu.Lock()
	s.requests[pkt.MessageType]++
	s.client = from
	s.mu.Unlock()

	switch pkt.MessageType {
	case protocol.MessageVersion:
		if s.ignoreVersion {
			return
		}
		if !sleep(ctx, s.versionDelay) {
			return
		}
		s.reply(protocol.VersionResponse(s.serverID), from)
	case protocol.MessagePortInfo:
		for _, pad := range protocol.ParsePortInfoRequest(pkt.Payload) {
			if pad == s.pad {
				s.reply(protocol.PortInfoResponse(s.serverID, pad), from)
			}
		}
	case protocol.MessagePadData:
		if pad, ok := protocol.ParsePadDataRequest(pkt.Payload); !ok || pad != s.pad {
			return
		}
		seq := s.seq.Add(1)
		frame, ok := s.source.Next(seq, time.Since(s.start))
		if !ok {
			return
		}
		if !sleep(ctx, frame.Delay) {
			return
		}
		s.reply(protocol.PadDataResponse(s.serverID, s.pad, seq, frame.Accel, frame.Gyro), from)
	}
}

func (s *Server) reply(b []byte, to *net.UDPAddr) {
	if _, err := s.conn.WriteToUDP(b, to); err != nil {
		s.log.Debug("Reply failed", "to", to.String(), "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
