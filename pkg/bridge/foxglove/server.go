package foxglove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dsumotion/pkg/engine"
	"dsumotion/pkg/gesture"
	"dsumotion/pkg/protocol"
	"dsumotion/pkg/transport"
)

// Server exposes hub events as a Foxglove WebSocket data source.
type Server struct {
	cfg      Config
	hub      *engine.Hub
	log      *slog.Logger
	channels []Channel
	clients  map[*client]struct{}
	mu       sync.RWMutex
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[uint32]uint64
	mu   sync.RWMutex
	// closed guards send; set once under mu.
	closed bool
}

func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		log:      slog.New(slog.DiscardHandler),
		channels: cfg.Channels(),
		clients:  make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("sys", "foxglove")
	return s
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:              s.cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.log.Info("Foxglove bridge listening", "addr", s.cfg.WSAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("foxglove listen %s: %w", s.cfg.WSAddr, err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	defer s.removeClient(c)
	defer c.close()

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		return
	}
	s.log.Debug("Client connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop(s.supportedChannels())
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(s.channels))
	for _, ch := range s.channels {
		out[ch.ID] = struct{}{}
	}
	return out
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          fmt.Sprintf("%d", time.Now().UTC().UnixNano()),
	}
}

func (s *Server) advertise() AdvertiseMsg {
	return AdvertiseMsg{Op: OpAdvertise, Channels: s.channels}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastEvent(ev)
		}
	}
}

func (s *Server) broadcastEvent(ev engine.Event) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch data := ev.Data.(type) {
	case protocol.MotionSample:
		s.publishJSONToChannel(ChannelMotion, ts, motionMessage(data))
		s.publishJSONToChannel(ChannelTransform, ts, s.transformFromSample(data, ts))
	case gesture.Event:
		s.publishJSONToChannel(ChannelGesture, ts, data)
		s.publishJSONToChannel(ChannelLog, ts, s.logMessage(ts, LogLevelInfo,
			fmt.Sprintf("gesture %s intensity %.2f", data.Kind, data.Intensity)))
	case gesture.Throw:
		s.publishJSONToChannel(ChannelThrow, ts, data)
		s.publishJSONToChannel(ChannelLog, ts, s.logMessage(ts, LogLevelInfo,
			fmt.Sprintf("%s force %.2f", gesture.BowlingSwing, data.Force)))
	case transport.Lifecycle:
		s.publishJSONToChannel(ChannelLog, ts, s.lifecycleLog(data, ts))
	}
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.log.Debug("Marshal failed", "channel", channelID, "err", err)
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range s.snapshotClients() {
		for _, subID := range c.subIDsForChannel(channelID) {
			c.trySend(EncodeMessageData(subID, logTime, payload))
		}
	}
}

func motionMessage(sample protocol.MotionSample) MotionMessage {
	return MotionMessage{
		TS:          sample.Timestamp,
		Accel:       vector(sample.Accelerometer),
		Gyro:        vector(sample.Gyroscope),
		Orientation: vector(sample.Orientation),
		Magnitude:   float64(sample.Accelerometer.Magnitude()),
	}
}

func vector(v protocol.Vec3) Vector3 {
	return Vector3{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// transformFromSample places the pad frame under the parent frame using the
// accelerometer tilt; yaw is not observable and stays at zero.
func (s *Server) transformFromSample(sample protocol.MotionSample, ts time.Time) FrameTransformsMessage {
	o := sample.Orientation
	return FrameTransformsMessage{Transforms: []FrameTransformMessage{{
		Timestamp:     frameTime(ts),
		ParentFrameID: s.cfg.ParentFrameID,
		ChildFrameID:  s.cfg.FrameID,
		Rotation:      quaternionFromEuler(float64(o.Y), float64(o.X), float64(o.Z)),
	}}}
}

func (s *Server) lifecycleLog(ev transport.Lifecycle, ts time.Time) LogMessage {
	if ev.State == transport.Disconnected {
		msg := "dsu disconnected"
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		return s.logMessage(ts, LogLevelWarning, msg)
	}
	return s.logMessage(ts, LogLevelInfo, "dsu "+ev.State.String())
}

func (s *Server) logMessage(ts time.Time, level uint8, msg string) LogMessage {
	return LogMessage{
		Timestamp: frameTime(ts),
		Level:     level,
		Message:   msg,
		Name:      s.cfg.LogName,
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// trySend drops the frame when the client is behind or already closed.
func (c *client) trySend(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}
