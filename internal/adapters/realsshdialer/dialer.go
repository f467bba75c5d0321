// Package realsshdialer dials helper hosts with golang.org/x/crypto/ssh.
package realsshdialer

import (
	"github.com/acolita/qemu-e2e/internal/ports"
	"golang.org/x/crypto/ssh"
)

type Dialer struct{}

func New() *Dialer {
	return &Dialer{}
}

func (*Dialer) Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	return ssh.Dial(network, addr, config)
}

var _ ports.SSHDialer = (*Dialer)(nil)
