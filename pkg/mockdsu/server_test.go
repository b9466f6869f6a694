package mockdsu_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"dsumotion/pkg/mockdsu"
	"dsumotion/pkg/protocol"
)

func serve(t *testing.T, src mockdsu.Source, opts ...mockdsu.Option) *mockdsu.Server {
	t.Helper()
	opts = append([]mockdsu.Option{mockdsu.WithLogger(slogt.New(t))}, opts...)
	srv, err := mockdsu.Listen("127.0.0.1:0", src, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return srv
}

func dial(t *testing.T, srv *mockdsu.Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("udp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, req []byte) protocol.Packet {
	t.Helper()
	_, err := conn.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.NoError(t, protocol.Verify(buf[:n]))

	pkt, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	require.True(t, pkt.FromServer())
	return pkt
}

func TestServerAnswersRequests(t *testing.T) {
	srv := serve(t, mockdsu.Script(
		mockdsu.Frame{Accel: protocol.Vec3{X: 1, Y: 2, Z: 3}, Gyro: protocol.Vec3{Z: 90}},
	), mockdsu.WithName("test-pad"))
	require.Equal(t, "test-pad", srv.Name())
	conn := dial(t, srv)

	pkt := roundTrip(t, conn, protocol.VersionRequest(42))
	require.Equal(t, protocol.MessageVersion, pkt.MessageType)
	require.Equal(t, srv.ServerID(), pkt.ClientID)

	pkt = roundTrip(t, conn, protocol.PortInfoRequest(42, 0))
	require.Equal(t, protocol.MessagePortInfo, pkt.MessageType)
	require.Equal(t, uint8(0), pkt.Payload[0])
	require.Equal(t, uint8(protocol.SlotConnected), pkt.Payload[1])

	pkt = roundTrip(t, conn, protocol.PadDataRequest(42, 0))
	require.Equal(t, protocol.MessagePadData, pkt.MessageType)
	sample, err := protocol.DecodePadData(pkt.Payload, 1)
	require.NoError(t, err)
	require.Equal(t, protocol.Vec3{X: 1, Y: 2, Z: 3}, sample.Accelerometer)
	require.Equal(t, protocol.Vec3{Z: 90}, sample.Gyroscope)

	require.Equal(t, 1, srv.Requests(protocol.MessageVersion))
	require.Equal(t, 1, srv.Requests(protocol.MessagePortInfo))
	require.Equal(t, 1, srv.Requests(protocol.MessagePadData))
	require.NotNil(t, srv.Client())
}

func TestServerIgnoresOtherPadsAndExhaustedScript(t *testing.T) {
	srv := serve(t, mockdsu.Script(mockdsu.Frame{}), mockdsu.WithPad(1))
	conn := dial(t, srv)

	_, err := conn.Write(protocol.PadDataRequest(1, 0))
	require.NoError(t, err)
	roundTrip(t, conn, protocol.PadDataRequest(1, 1))

	_, err = conn.Write(protocol.PadDataRequest(1, 1))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = conn.Read(make([]byte, 256))
	require.Error(t, err)
	require.Equal(t, 3, srv.Requests(protocol.MessagePadData))
}

func TestServerWithoutVersion(t *testing.T) {
	srv := serve(t, nil, mockdsu.WithoutVersion())
	conn := dial(t, srv)

	_, err := conn.Write(protocol.VersionRequest(1))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = conn.Read(make([]byte, 256))
	require.Error(t, err)
	require.Equal(t, 1, srv.Requests(protocol.MessageVersion))
}

func TestSendRawNeedsClient(t *testing.T) {
	srv := serve(t, nil)
	require.Error(t, srv.SendRaw([]byte("x")))

	conn := dial(t, srv)
	roundTrip(t, conn, protocol.VersionRequest(1))
	require.NoError(t, srv.SendRaw([]byte("raw")))

	buf := make([]byte, 16)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "raw", string(buf[:n]))
}

func TestWaveBursts(t *testing.T) {
	w := mockdsu.DefaultWave()

	quiet, ok := w.Next(1, 500*time.Millisecond)
	require.True(t, ok)
	require.Less(t, quiet.Accel.Magnitude(), float32(0.5))
	require.Equal(t, time.Second/60, quiet.Delay)

	// First burst swings forward, peaking halfway through.
	peak, _ := w.Next(2, w.Every+w.Burst/2)
	require.Greater(t, peak.Accel.Z, w.Peak-0.5)

	// Fifth burst is a shake along x.
	shakeAt := 5*w.Every + w.Burst/2
	a, _ := w.Next(10, shakeAt)
	b, _ := w.Next(11, shakeAt)
	require.Greater(t, a.Accel.X, float32(2))
	require.Less(t, b.Accel.X, float32(-2))
}

func TestSourceFunc(t *testing.T) {
	var seen uint32
	src := mockdsu.SourceFunc(func(seq uint32, _ time.Duration) (mockdsu.Frame, bool) {
		seen = seq
		return mockdsu.Frame{}, seq < 3
	})
	_, ok := src.Next(3, 0)
	require.False(t, ok)
	require.Equal(t, uint32(3), seen)
}
