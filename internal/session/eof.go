package session

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// isEndOfStream reports whether err is the normal way a console goes away:
// EOF on sockets and pipes, EIO on a PTY master whose child exited, or a read
// on a transport we closed ourselves.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
