package rawtcp

import (
	"net"
	"strconv"
	"time"
)

// Defaults for the ESP8266 UART gateway the console was written against.
const (
	// DefaultAddress is the gateway's address on the bench network.
	DefaultAddress = "192.168.0.108"

	// DefaultPort is the gateway's listening port.
	DefaultPort = 502

	// DefaultConnectTimeout bounds a single connect attempt.
	DefaultConnectTimeout = 3 * time.Second

	// DefaultSendTimeout bounds a single write.
	DefaultSendTimeout = 3 * time.Second

	// DefaultReceiveTimeout bounds a single read once data is pending.
	DefaultReceiveTimeout = 3 * time.Second

	// ResponseTimeout is how long to wait for the device to answer a command.
	ResponseTimeout = 2 * time.Second

	// PollInterval is the readability poll granularity while waiting for a
	// response.
	PollInterval = 50 * time.Millisecond

	// DefaultReadBufferSize is used when the socket's receive buffer size
	// cannot be queried.
	DefaultReadBufferSize = 64 * 1024

	// maxReadBufferSize caps the buffer derived from SO_RCVBUF, which Linux
	// reports doubled.
	maxReadBufferSize = 1 << 20

	// readerBufferSize is the size of the bufio.Reader wrapped around the
	// socket. Reads larger than this bypass the buffer.
	readerBufferSize = 4096
)

// ExitKeyword is the command that ends the console (case-insensitive).
const ExitKeyword = "exit"

// JoinHostPort formats address and port as a dial target.
func JoinHostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
