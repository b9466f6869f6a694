package protocol

import "math"

// Vec3 is a three-axis sensor reading.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) Scale(f float32) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Magnitude() float32 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return float32(math.Sqrt(x*x + y*y + z*z))
}

// Normalize returns the unit vector of v. The zero vector stays zero.
func (v Vec3) Normalize() Vec3 {
	m := v.Magnitude()
	if m == 0 {
		return Vec3{}
	}
	return v.Scale(1 / m)
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// MotionSample is one decoded pad-data report.
// Orientation holds pitch (X), roll (Y) and yaw (Z) in radians derived from
// the accelerometer; yaw is always zero because gravity alone cannot observe it.
type MotionSample struct {
	Accelerometer Vec3    `json:"accel"`
	Gyroscope     Vec3    `json:"gyro"`
	Orientation   Vec3    `json:"orientation"`
	Connected     bool    `json:"connected"`
	Timestamp     float64 `json:"ts"`
}

// Packet is a decoded DSU datagram. Payload excludes the message type.
type Packet struct {
	Magic       [4]byte
	Version     uint16
	Length      uint16
	Checksum    uint32
	ClientID    uint32
	MessageType MessageType
	Payload     []byte
}

// FromServer reports whether the packet carries the server marker.
func (p Packet) FromServer() bool {
	return p.Magic == ServerMagic
}

// MessageType identifies a DSU request or response.
type MessageType uint32

const (
	MessageVersion  MessageType = 0x100000
	MessagePortInfo MessageType = 0x100001
	MessagePadData  MessageType = 0x100002
)

func (t MessageType) String() string {
	switch t {
	case MessageVersion:
		return "version"
	case MessagePortInfo:
		return "port-info"
	case MessagePadData:
		return "pad-data"
	default:
		return "unknown"
	}
}
