package ports

import "golang.org/x/crypto/ssh"

// SSHDialer opens the SSH connection to a helper host. Tests swap in
// fakesshdialer to observe the client config without a server.
type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}
