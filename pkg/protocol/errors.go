package protocol

import "errors"

var (
	ErrTruncatedHeader  = errors.New("dsu: datagram shorter than header")
	ErrBadMagic         = errors.New("dsu: bad magic")
	ErrTruncatedPayload = errors.New("dsu: payload truncated")
	ErrTruncatedPadData = errors.New("dsu: pad data too short")
	ErrInvalidPadData   = errors.New("dsu: pad data not finite")
	ErrChecksumMismatch = errors.New("dsu: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("dsu: payload too large")
)
