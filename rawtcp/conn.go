package rawtcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Options describes the connection target and its timeouts. Zero values
// are replaced with the package defaults.
type Options struct {
	Address string
	Port    int

	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration

	// Logger receives connection lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Address == "" {
		o.Address = DefaultAddress
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = DefaultReceiveTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Target returns the "host:port" dial target.
func (o Options) Target() string {
	o = o.withDefaults()
	return JoinHostPort(o.Address, o.Port)
}

type probeState int

const (
	probeEmpty  probeState = iota // nothing to read yet
	probeData                     // at least one byte pending
	probeClosed                   // peer sent FIN (or reset)
)

// Conn is one raw TCP connection to the device.
type Conn struct {
	tcp    *net.TCPConn
	reader *bufio.Reader
	target string
	opts   Options
	logger *slog.Logger

	readBufSize int
	peekBuf     [1]byte

	closed    atomic.Bool
	closeOnce sync.Once
}

// Dial opens a connection to the target in opts. Failures are returned as
// *ConnectError.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	target := JoinHostPort(opts.Address, opts.Port)
	logger := opts.Logger.With("target", target)

	logger.Info("connecting", "timeout", opts.ConnectTimeout)

	d := net.Dialer{Timeout: opts.ConnectTimeout}
	nc, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		cerr := NewConnectError(target, err)
		logger.Warn("connect failed", "err", err)
		return nil, cerr
	}

	tcp, ok := nc.(*net.TCPConn)
	if !ok {
		_ = nc.Close()
		return nil, NewConnectError(target, fmt.Errorf("unexpected connection type %T", nc))
	}

	c := &Conn{
		tcp:         tcp,
		reader:      bufio.NewReaderSize(tcp, readerBufferSize),
		target:      target,
		opts:        opts,
		logger:      logger,
		readBufSize: clampReadBufferSize(receiveBufferSize(tcp)),
	}
	logger.Info("connected", "local", tcp.LocalAddr().String(), "read_buffer", c.readBufSize)
	return c, nil
}

// Target returns the "host:port" this connection was dialed to.
func (c *Conn) Target() string {
	return c.target
}

// ReceiveBufferSize is the largest chunk ReadResponse returns.
func (c *Conn) ReceiveBufferSize() int {
	return c.readBufSize
}

// IsAlive reports whether the peer still has its end open. It never blocks
// and never consumes data: bytes that are pending stay pending for
// ReadResponse.
func (c *Conn) IsAlive() bool {
	if c.closed.Load() {
		return false
	}
	state, err := c.probe()
	if err != nil {
		c.logger.Debug("liveness probe failed", "err", err)
		return false
	}
	return state != probeClosed
}

// Write sends all of p within the send timeout.
func (c *Conn) Write(p []byte) error {
	if c.closed.Load() {
		return newIOError("write", ErrClosed)
	}
	if err := c.tcp.SetWriteDeadline(time.Now().Add(c.opts.SendTimeout)); err != nil {
		return c.ioError("write", err)
	}
	n, err := c.tcp.Write(p)
	if err != nil {
		return c.ioError("write", err)
	}
	if n != len(p) {
		return newIOError("write", io.ErrShortWrite)
	}
	c.logger.Debug("sent", "bytes", n)
	return nil
}

// WaitForData polls the socket every interval until data is pending, the
// peer has closed (reported as ready so the following read observes it), or
// timeout elapses. It returns false with a nil error on timeout, and
// ctx.Err() if ctx ends first. A non-positive timeout or interval falls
// back to ResponseTimeout or PollInterval.
func (c *Conn) WaitForData(ctx context.Context, timeout, interval time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = ResponseTimeout
	}
	if interval <= 0 {
		interval = PollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ready, err := c.pending()
		if err != nil || ready {
			return ready, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return c.pending()
		case <-ticker.C:
		}
	}
}

func (c *Conn) pending() (bool, error) {
	if c.closed.Load() {
		return false, newIOError("probe", ErrClosed)
	}
	state, err := c.probe()
	if err != nil {
		return false, c.ioError("probe", err)
	}
	return state != probeEmpty, nil
}

// ReadResponse performs one read of up to ReceiveBufferSize bytes. A read
// that yields nothing means the peer closed the connection.
func (c *Conn) ReadResponse() ([]byte, error) {
	if c.closed.Load() {
		return nil, newIOError("read", ErrClosed)
	}
	if err := c.tcp.SetReadDeadline(time.Now().Add(c.opts.ReceiveTimeout)); err != nil {
		return nil, c.ioError("read", err)
	}

	buf := make([]byte, c.readBufSize)
	n, err := c.reader.Read(buf)
	if n > 0 {
		c.logger.Debug("received", "bytes", n)
		return buf[:n], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, newIOError("read", ErrPeerClosed)
	}
	return nil, c.ioError("read", err)
}

// Release closes the socket. It is idempotent, never fails, and may be
// called from any goroutine while another one is using the connection.
func (c *Conn) Release() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.tcp.Close(); err != nil {
			c.logger.Debug("close", "err", err)
		}
		c.logger.Info("connection released")
	})
}

// Released reports whether Release has been called.
func (c *Conn) Released() bool {
	return c.closed.Load()
}

func (c *Conn) probe() (probeState, error) {
	if c.reader.Buffered() > 0 {
		return probeData, nil
	}
	return c.peek()
}

func (c *Conn) ioError(op string, err error) error {
	switch {
	case c.closed.Load() && errors.Is(err, net.ErrClosed):
		err = ErrClosed
	case errors.Is(err, io.EOF):
		err = ErrPeerClosed
	}
	return newIOError(op, err)
}

func clampReadBufferSize(size int) int {
	switch {
	case size <= 0:
		return DefaultReadBufferSize
	case size > maxReadBufferSize:
		return maxReadBufferSize
	default:
		return size
	}
}
