// Package sftp uploads test artifacts to SSH helper hosts.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var (
	errClosed = errors.New("sftp: client closed")
	errNoConn = errors.New("sftp: no ssh connection")
)

// Client runs the SFTP subsystem over an SSH connection it does not own.
// The subsystem is started by the first Upload.
type Client struct {
	conn *ssh.Client

	mu     sync.Mutex
	sub    *sftp.Client
	closed bool
}

func NewClient(conn *ssh.Client) *Client {
	return &Client{conn: conn}
}

func (c *Client) subsystem() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, errClosed
	case c.sub != nil:
		return c.sub, nil
	case c.conn == nil:
		return nil, errNoConn
	}
	sub, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, fmt.Errorf("start sftp subsystem: %w", err)
	}
	c.sub = sub
	return sub, nil
}

// Close stops the subsystem and leaves the SSH connection open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.sub == nil {
		return nil
	}
	return c.sub.Close()
}

// Upload writes the regular file at local to remote, creating the remote
// parent directories, and copies the permission bits so uploaded test
// binaries stay executable. It returns the number of bytes copied.
func (c *Client) Upload(local, remote string) (int64, error) {
	sub, err := c.subsystem()
	if err != nil {
		return 0, err
	}

	src, err := os.Open(local)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: not a regular file", local)
	}

	if dir := path.Dir(remote); dir != "." && dir != "/" {
		if err := sub.MkdirAll(dir); err != nil {
			return 0, fmt.Errorf("remote mkdir %s: %w", dir, err)
		}
	}

	dst, err := sub.Create(remote)
	if err != nil {
		return 0, fmt.Errorf("remote create %s: %w", remote, err)
	}
	n, err := io.Copy(dst, src)
	if err == nil {
		err = dst.Chmod(info.Mode().Perm())
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("upload to %s: %w", remote, err)
	}
	return n, nil
}
