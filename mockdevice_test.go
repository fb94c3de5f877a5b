// =============================================================================
// mockdevice_test.go - Mock ESP Gateway for Testing
// =============================================================================
//
// A loopback TCP listener that stands in for the device. Each accepted
// connection is numbered (0, 1, 2, ...) and handed to a handler chosen by
// the test, so a test can script "drop the first connection, echo on the
// second" and watch the console reconnect.
//
// Everything the device receives is recorded per connection, which lets
// tests assert exactly which bytes went over the wire, and that nothing
// was sent on a connection the console had already found dead.
//
// =============================================================================

package main

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LayAlex/ESP-TCP-UART-Gateway/rawtcp"
)

// deviceHandler serves one accepted connection. index counts accepted
// connections from zero. rec must be used to read so the bytes are recorded.
type deviceHandler func(index int, conn net.Conn, rec *recorder)

// mockDevice is a lightweight mock of the ESP gateway.
type mockDevice struct {
	listener net.Listener
	handler  deviceHandler

	mu          sync.Mutex
	connections []net.Conn
	received    []*recorder

	wg sync.WaitGroup
}

// recorder captures the bytes read from one connection.
type recorder struct {
	mu   sync.Mutex
	conn net.Conn
	data bytes.Buffer
}

// Read reads from the connection and records what was read.
func (r *recorder) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	r.mu.Lock()
	r.data.Write(p[:n])
	r.mu.Unlock()
	return n, err
}

func (r *recorder) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data.Bytes()...)
}

// startMockDevice listens on 127.0.0.1 and serves connections with
// handler until the test finishes.
func startMockDevice(t *testing.T, handler deviceHandler) *mockDevice {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	md := &mockDevice{listener: listener, handler: handler}

	md.wg.Add(1)
	go md.acceptLoop()

	t.Cleanup(md.stop)
	return md
}

func (md *mockDevice) acceptLoop() {
	defer md.wg.Done()

	for {
		conn, err := md.listener.Accept()
		if err != nil {
			return
		}

		rec := &recorder{conn: conn}
		md.mu.Lock()
		index := len(md.connections)
		md.connections = append(md.connections, conn)
		md.received = append(md.received, rec)
		md.mu.Unlock()

		md.wg.Add(1)
		go func() {
			defer md.wg.Done()
			md.handler(index, conn, rec)
		}()
	}
}

func (md *mockDevice) stop() {
	md.listener.Close()

	md.mu.Lock()
	for _, conn := range md.connections {
		conn.Close()
	}
	md.mu.Unlock()

	md.wg.Wait()
}

// accepted returns how many connections the device has accepted.
func (md *mockDevice) accepted() int {
	md.mu.Lock()
	defer md.mu.Unlock()
	return len(md.connections)
}

// receivedOn returns the bytes received on connection index.
func (md *mockDevice) receivedOn(index int) []byte {
	md.mu.Lock()
	defer md.mu.Unlock()
	if index >= len(md.received) {
		return nil
	}
	return md.received[index].bytes()
}

func (md *mockDevice) port() int {
	return md.listener.Addr().(*net.TCPAddr).Port
}

// testConfig points at the mock device with timings short enough for tests.
func (md *mockDevice) testConfig() Config {
	cfg := defaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = md.port()
	cfg.ConnectTimeout = time.Second
	cfg.ResponseTimeout = 300 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RetryDelay = 20 * time.Millisecond
	return cfg
}

// =============================================================================
// Handlers
// =============================================================================

// echoHandler writes back every chunk it reads.
func echoHandler(_ int, conn net.Conn, rec *recorder) {
	buf := make([]byte, 1024)
	for {
		n, err := rec.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// silentHandler reads and never answers.
func silentHandler(_ int, _ net.Conn, rec *recorder) {
	_, _ = io.Copy(io.Discard, rec)
}

// closeAfterRequest closes connection 0 after its first chunk, without
// answering, and hands the rest to next.
func closeAfterRequest(next deviceHandler) deviceHandler {
	return func(index int, conn net.Conn, rec *recorder) {
		if index == 0 {
			buf := make([]byte, 1024)
			_, _ = rec.Read(buf)
			conn.Close()
			return
		}
		next(index, conn, rec)
	}
}

// =============================================================================
// Console Harness
// =============================================================================

// syncBuffer is a bytes.Buffer safe for the session and input goroutines
// writing at the same time.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) count(s string) int {
	return strings.Count(b.String(), s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestConsole builds a console reading lines from in.
func newTestConsole(t *testing.T, cfg Config, in io.Reader) (*console, *syncBuffer) {
	t.Helper()

	out := &syncBuffer{}
	input := newLineSource(newPipedLineEditor(in, out))
	t.Cleanup(input.Close)

	logger := discardLogger()
	c := &console{
		cfg:      cfg,
		manager:  rawtcp.NewManager(cfg.connOptions(logger)),
		input:    input,
		shutdown: NewShutdown(),
		out:      out,
		logger:   logger,
	}
	t.Cleanup(c.manager.Release)
	return c, out
}

// runConsoleAsync runs c.run on a goroutine. The returned channel is
// closed when it returns.
func runConsoleAsync(c *console) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run()
	}()
	return done
}

// waitDone fails the test if done is not closed within timeout.
func waitDone(t *testing.T, done <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("console did not stop within %s", timeout)
	}
}

// waitFor polls cond until it holds or 3 seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
