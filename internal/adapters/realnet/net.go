// Package realnet provides a real implementation of the NetworkDialer port.
package realnet

import (
	"context"
	"net"
	"time"
)

// Dialer implements ports.NetworkDialer using net.Dialer.
type Dialer struct {
	d net.Dialer
}

// NewDialer creates a new Dialer. A zero timeout leaves the deadline to ctx.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{d: net.Dialer{Timeout: timeout}}
}

// DialContext establishes a network connection.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.d.DialContext(ctx, network, address)
}
