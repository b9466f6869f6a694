package transport

import "net"

// WithConnWrapper lets tests interpose on the socket of every new link.
func WithConnWrapper(wrap func(net.Conn) net.Conn) Option {
	return func(s *Session) {
		s.wrapConn = wrap
	}
}
