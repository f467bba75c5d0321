// Package fakesshdialer provides a fake SSH dialer for testing.
package fakesshdialer

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Dialer is a fake ports.SSHDialer that records calls and fails by default.
type Dialer struct {
	mu    sync.Mutex
	err   error
	calls []DialCall
}

// DialCall records a call to Dial.
type DialCall struct {
	Network string
	Addr    string
	Config  *ssh.ClientConfig
}

// New creates a new fake Dialer that refuses every connection.
func New() *Dialer {
	return &Dialer{err: fmt.Errorf("fakesshdialer: connection refused")}
}

// SetError configures the error returned by Dial.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial records the call and returns the configured error.
func (d *Dialer) Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DialCall{Network: network, Addr: addr, Config: config})
	return nil, d.err
}

// Calls returns all recorded Dial calls.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DialCall, len(d.calls))
	copy(out, d.calls)
	return out
}
