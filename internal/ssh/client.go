// Package ssh connects to remote helper hosts and opens an interactive shell
// on them for the helper console.
package ssh

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/acolita/qemu-e2e/internal/adapters/realsshdialer"
	"github.com/acolita/qemu-e2e/internal/ports"
	"github.com/acolita/qemu-e2e/internal/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 30 * time.Second
)

var errNotConnected = errors.New("ssh: not connected")

// ClientOptions describes a helper host. Port, Timeout and Dialer have
// defaults; a nil HostKeyCallback accepts any key.
type ClientOptions struct {
	Host            string
	Port            int
	User            string
	AuthMethods     []ssh.AuthMethod
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
	Dialer          ports.SSHDialer
}

func (o *ClientOptions) check() error {
	switch {
	case o.Host == "":
		return errors.New("ssh: host is required")
	case o.User == "":
		return errors.New("ssh: user is required")
	case len(o.AuthMethods) == 0:
		return errors.New("ssh: no auth method")
	}
	if o.Port == 0 {
		o.Port = defaultPort
	}
	if o.Timeout == 0 {
		o.Timeout = defaultDialTimeout
	}
	if o.HostKeyCallback == nil {
		o.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	if o.Dialer == nil {
		o.Dialer = realsshdialer.New()
	}
	return nil
}

// Client is one SSH connection to a helper host. The connection is made by
// Connect and shared by the shell session and the SFTP uploads.
type Client struct {
	addr   string
	config *ssh.ClientConfig
	dialer ports.SSHDialer

	mu   sync.Mutex
	conn *ssh.Client
	sftp *sftp.Client
}

// NewClient validates opts. It does not dial.
func NewClient(opts ClientOptions) (*Client, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	return &Client{
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            opts.AuthMethods,
			HostKeyCallback: opts.HostKeyCallback,
			Timeout:         opts.Timeout,
		},
		dialer: opts.Dialer,
	}, nil
}

// Addr is the host:port dialed.
func (c *Client) Addr() string {
	return c.addr
}

// Connect dials once; later calls are no-ops while connected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.Dial("tcp", c.addr, c.config)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) NewSession() (*ssh.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errNotConnected
	}
	s, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session on %s: %w", c.addr, err)
	}
	return s, nil
}

// SFTPClient returns the SFTP client bound to this connection, creating it on
// first use.
func (c *Client) SFTPClient() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errNotConnected
	}
	if c.sftp == nil {
		c.sftp = sftp.NewClient(c.conn)
	}
	return c.sftp, nil
}

// Close tears down SFTP first, then the connection. Closing an unconnected
// client is fine.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
