package transport

import (
	"log/slog"
	"time"
)

type Option func(*Session)

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLifecycleHandler registers an observer for Connected and Disconnected
// transitions. Handlers run on the receive goroutine or on the goroutine
// calling Disconnect, so they must not block.
func WithLifecycleHandler(fn func(Lifecycle)) Option {
	return func(s *Session) {
		if fn != nil {
			s.onLifecycle = append(s.onLifecycle, fn)
		}
	}
}

// WithClock replaces time.Now for sample timestamps and the connect timeout.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPollInterval sets the read deadline. When it expires on a connected
// session a fresh PadDataRequest is sent.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithJoinTimeout bounds how long Disconnect waits for the receive loop.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.joinTimeout = d
		}
	}
}

// WithChecksumValidation forces inbound CRC checks regardless of the
// ValidateChecksum config field.
func WithChecksumValidation(enabled bool) Option {
	return func(s *Session) {
		s.forceChecksum = enabled
	}
}

func WithClientID(id uint32) Option {
	return func(s *Session) {
		s.clientID = id
	}
}

func WithReadBufferSize(n int) Option {
	return func(s *Session) {
		if n >= 64 {
			s.readBuf = n
		}
	}
}
