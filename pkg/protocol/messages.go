package protocol

// VersionRequest has no payload.
func VersionRequest(clientID uint32) []byte {
	buf, _ := Encode(MessageVersion, nil, clientID)
	return buf
}

// PortInfoRequest asks for the state of the listed pad slots.
func PortInfoRequest(clientID uint32, pads ...uint8) []byte {
	payload := make([]byte, 4+len(pads))
	le.PutUint32(payload[0:4], uint32(len(pads)))
	copy(payload[4:], pads)
	buf, _ := Encode(MessagePortInfo, payload, clientID)
	return buf
}

// PadDataRequest polls one pad slot for a motion report.
func PadDataRequest(clientID uint32, padID uint8) []byte {
	payload := []byte{RequestBySlot, padID, 0, 0}
	buf, _ := Encode(MessagePadData, payload, clientID)
	return buf
}

// ParsePadDataRequest returns the pad id of a pad-data request payload.
func ParsePadDataRequest(payload []byte) (uint8, bool) {
	if len(payload) < PadDataRequestSize {
		return 0, false
	}
	return payload[1], true
}

// ParsePortInfoRequest returns the requested pad slots.
func ParsePortInfoRequest(payload []byte) []uint8 {
	if len(payload) < 4 {
		return nil
	}
	n := int(le.Uint32(payload[0:4]))
	if n > len(payload)-4 {
		n = len(payload) - 4
	}
	return append([]uint8(nil), payload[4:4+n]...)
}

// VersionResponse answers a version request with ProtocolVersion.
func VersionResponse(serverID uint32) []byte {
	payload := make([]byte, 2)
	le.PutUint16(payload, ProtocolVersion)
	buf, _ := EncodeServer(MessageVersion, payload, serverID)
	return buf
}

// PortInfoResponse reports pad as a connected full-gyro controller.
func PortInfoResponse(serverID uint32, pad uint8) []byte {
	payload := make([]byte, PortInfoSize)
	writeSlotInfo(payload, pad)
	buf, _ := EncodeServer(MessagePortInfo, payload, serverID)
	return buf
}

// PadDataResponse carries one motion report for pad.
func PadDataResponse(serverID uint32, pad uint8, packetNo uint32, accel, gyro Vec3) []byte {
	payload := make([]byte, PadDataMinSize)
	writeSlotInfo(payload, pad)
	le.PutUint32(payload[PadDataPacketNo:], packetNo)
	putVec3(payload[PadDataAccelOffset:], accel)
	putVec3(payload[PadDataGyroOffset:], gyro)
	buf, _ := EncodeServer(MessagePadData, payload, serverID)
	return buf
}

func writeSlotInfo(b []byte, pad uint8) {
	b[0] = pad
	b[1] = SlotConnected
	b[2] = ModelFullGyro
	b[3] = ConnectionUSB
	// b[4:10] MAC left zeroed
	b[10] = BatteryFull
	b[PadDataConnected] = 1
}
