package protocol

import (
	"encoding/binary"
	"math"
)

var le = binary.LittleEndian

// Encode builds a client datagram ("DSUC") for msgType.
func Encode(msgType MessageType, payload []byte, clientID uint32) ([]byte, error) {
	return encode(ClientMagic, msgType, payload, clientID)
}

// EncodeServer builds a server datagram ("DSUS") for msgType.
func EncodeServer(msgType MessageType, payload []byte, serverID uint32) ([]byte, error) {
	return encode(ServerMagic, msgType, payload, serverID)
}

func encode(magic [4]byte, msgType MessageType, payload []byte, id uint32) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, HeaderSize+MessageTypeSize+len(payload))
	copy(buf[0:4], magic[:])
	le.PutUint16(buf[4:6], ProtocolVersion)
	le.PutUint16(buf[6:8], uint16(MessageTypeSize+len(payload)))
	le.PutUint32(buf[clientIDOffset:], id)
	le.PutUint32(buf[HeaderSize:], uint32(msgType))
	copy(buf[HeaderSize+MessageTypeSize:], payload)

	le.PutUint32(buf[checksumOffset:], Checksum(buf))
	return buf, nil
}

// Decode parses the fixed header and slices out the payload that follows the
// message type. Both client and server markers are accepted; callers decide
// which direction they expect.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, ErrTruncatedHeader
	}

	var pkt Packet
	copy(pkt.Magic[:], buf[0:4])
	if pkt.Magic != ServerMagic && pkt.Magic != ClientMagic {
		return Packet{}, ErrBadMagic
	}

	pkt.Version = le.Uint16(buf[4:6])
	pkt.Length = le.Uint16(buf[6:8])
	pkt.Checksum = le.Uint32(buf[checksumOffset:])
	pkt.ClientID = le.Uint32(buf[clientIDOffset:])

	end := HeaderSize + int(pkt.Length)
	if pkt.Length < MessageTypeSize || end > len(buf) {
		return Packet{}, ErrTruncatedPayload
	}

	pkt.MessageType = MessageType(le.Uint32(buf[HeaderSize:]))
	pkt.Payload = append([]byte(nil), buf[HeaderSize+MessageTypeSize:end]...)
	return pkt, nil
}

// DecodePadData extracts the motion block of a pad-data response payload.
// A NaN or infinite accelerometer or gyroscope component is rejected with
// ErrInvalidPadData. Connected mirrors the pad's connected byte.
func DecodePadData(payload []byte, timestamp float64) (MotionSample, error) {
	if len(payload) < PadDataMinSize {
		return MotionSample{}, ErrTruncatedPadData
	}

	accel := readVec3(payload[PadDataAccelOffset:])
	gyro := readVec3(payload[PadDataGyroOffset:])
	if !accel.IsFinite() || !gyro.IsFinite() {
		return MotionSample{}, ErrInvalidPadData
	}

	return MotionSample{
		Accelerometer: accel,
		Gyroscope:     gyro,
		Orientation:   OrientationFromAccel(accel),
		Connected:     payload[PadDataConnected] != 0,
		Timestamp:     timestamp,
	}, nil
}

// OrientationFromAccel derives pitch and roll from the gravity vector.
func OrientationFromAccel(a Vec3) Vec3 {
	ax, ay, az := float64(a.X), float64(a.Y), float64(a.Z)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))
	roll := math.Atan2(ay, az)
	return Vec3{X: float32(pitch), Y: float32(roll), Z: 0}
}

func readVec3(b []byte) Vec3 {
	return Vec3{
		X: math.Float32frombits(le.Uint32(b[0:4])),
		Y: math.Float32frombits(le.Uint32(b[4:8])),
		Z: math.Float32frombits(le.Uint32(b[8:12])),
	}
}

func putVec3(b []byte, v Vec3) {
	le.PutUint32(b[0:4], math.Float32bits(v.X))
	le.PutUint32(b[4:8], math.Float32bits(v.Y))
	le.PutUint32(b[8:12], math.Float32bits(v.Z))
}
