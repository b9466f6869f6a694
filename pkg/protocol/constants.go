package protocol

// Wire layout of every DSU datagram:
//
//	Magic(4) | Version(2) | Length(2) | CRC32(4) | ClientID(4) | MessageType(4) | Payload
//
// Length counts the message type and the payload. The CRC covers the whole
// datagram with its own field zeroed. All integers are little-endian.
const (
	HeaderSize      = 16
	MessageTypeSize = 4

	checksumOffset = 8
	clientIDOffset = 12

	ProtocolVersion = 1001
	DefaultPort     = 26760

	// MaxPayloadSize keeps Length (payload + message type) inside a u16.
	MaxPayloadSize = 0xFFFF - MessageTypeSize

	// Pad-data response layout, relative to the payload after the message type.
	PadDataMinSize     = 80
	PadDataConnected   = 11
	PadDataPacketNo    = 12
	PadDataAccelOffset = 28
	PadDataGyroOffset  = 40

	// Pad-data request: request type, pad id, two reserved bytes.
	PadDataRequestSize = 4
	RequestBySlot      = 0x01

	// Port-info response: slot, state, model, connection type, MAC(6), battery, connected.
	PortInfoSize = 12

	SlotConnected = 0x02
	ModelFullGyro = 0x02
	ConnectionUSB = 0x01
	BatteryFull   = 0x05
)

var (
	ClientMagic = [4]byte{'D', 'S', 'U', 'C'}
	ServerMagic = [4]byte{'D', 'S', 'U', 'S'}
)
