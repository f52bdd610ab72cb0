package channel

import (
	"context"
	"net"
	"time"
)

// Dialer establishes the transport-level connection to one peer endpoint.
// The peer contract only requires a local byte stream, so tests substitute
// in-process pipes here.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// TCPDialer connects to the peer's loopback TCP endpoints.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to addr, bounded by the configured timeout and ctx.
func (d *TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, "tcp", addr)
}
