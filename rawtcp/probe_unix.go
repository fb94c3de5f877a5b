//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package rawtcp

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// peek asks the kernel whether a byte is pending without removing it.
func (c *Conn) peek() (probeState, error) {
	raw, err := c.tcp.SyscallConn()
	if err != nil {
		return probeEmpty, err
	}

	var n int
	var recvErr error
	if err := raw.Control(func(fd uintptr) {
		n, _, recvErr = unix.Recvfrom(int(fd), c.peekBuf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	}); err != nil {
		return probeEmpty, err
	}

	switch {
	case errors.Is(recvErr, unix.EAGAIN), errors.Is(recvErr, unix.EWOULDBLOCK), errors.Is(recvErr, unix.EINTR):
		return probeEmpty, nil
	case errors.Is(recvErr, unix.ECONNRESET):
		return probeClosed, nil
	case recvErr != nil:
		return probeEmpty, recvErr
	case n == 0:
		return probeClosed, nil
	default:
		return probeData, nil
	}
}

func receiveBufferSize(tcp *net.TCPConn) int {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return 0
	}
	size := 0
	_ = raw.Control(func(fd uintptr) {
		if v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil {
			size = v
		}
	})
	return size
}
