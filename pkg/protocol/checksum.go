package protocol

import "hash/crc32"

// Checksum computes the reflected CRC-32 (polynomial 0xEDB88320, seed and
// final XOR 0xFFFFFFFF) used by DSU datagrams.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Verify recomputes the checksum of a raw datagram with its checksum field
// zeroed and compares it against the transmitted one.
func Verify(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrTruncatedHeader
	}
	sent := le.Uint32(buf[checksumOffset:])

	h := crc32.NewIEEE()
	h.Write(buf[:checksumOffset])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(buf[checksumOffset+4:])
	if h.Sum32() != sent {
		return ErrChecksumMismatch
	}
	return nil
}
