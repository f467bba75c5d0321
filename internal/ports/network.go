package ports

import (
	"context"
	"net"
)

// NetworkDialer abstracts network dialing for testing.
type NetworkDialer interface {
	// DialContext establishes a network connection, giving up when ctx is done.
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
