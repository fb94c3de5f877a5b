//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package rawtcp

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// peekWindow bounds the buffered peek. A deadline already in the past would
// fail before the read is attempted, so the window must be positive.
const peekWindow = time.Millisecond

// peek fills the connection's buffered reader without consuming from it.
// Whatever it pulls off the socket is returned by the next ReadResponse.
func (c *Conn) peek() (probeState, error) {
	if err := c.tcp.SetReadDeadline(time.Now().Add(peekWindow)); err != nil {
		return probeEmpty, err
	}
	defer c.tcp.SetReadDeadline(time.Time{})

	_, err := c.reader.Peek(1)
	switch {
	case err == nil:
		return probeData, nil
	case errors.Is(err, io.EOF):
		return probeClosed, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return probeEmpty, nil
	default:
		return probeEmpty, err
	}
}

func receiveBufferSize(*net.TCPConn) int {
	return 0
}
