package rawtcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice is a loopback listener standing in for the ESP gateway. Each
// accepted connection is handed to the test over a channel.
type fakeDevice struct {
	ln    net.Listener
	conns chan net.Conn
}

func startFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDevice{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			d.conns <- c
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		for {
			select {
			case c := <-d.conns:
				_ = c.Close()
			default:
				return
			}
		}
	})
	return d
}

func (d *fakeDevice) options() Options {
	addr := d.ln.Addr().(*net.TCPAddr)
	return Options{
		Address:        addr.IP.String(),
		Port:           addr.Port,
		ConnectTimeout: time.Second,
		SendTimeout:    time.Second,
		ReceiveTimeout: time.Second,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (d *fakeDevice) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-d.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("device did not accept a connection")
		return nil
	}
}

func dialDevice(t *testing.T, d *fakeDevice) (*Conn, net.Conn) {
	t.Helper()
	conn, err := Dial(context.Background(), d.options())
	require.NoError(t, err)
	t.Cleanup(conn.Release)
	return conn, d.accept(t)
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), Options{Address: "127.0.0.1", Port: port, ConnectTimeout: time.Second})

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonRefused, ce.Reason)
	assert.Equal(t, JoinHostPort("127.0.0.1", port), ce.Target)
}

func TestDialCanceled(t *testing.T) {
	d := startFakeDevice(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, d.options())

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonCanceled, ce.Reason)
}

func TestDialDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultAddress, opts.Address)
	assert.Equal(t, DefaultPort, opts.Port)
	assert.Equal(t, DefaultSendTimeout, opts.SendTimeout)
	assert.Equal(t, DefaultReceiveTimeout, opts.ReceiveTimeout)
	assert.NotNil(t, opts.Logger)
	assert.Equal(t, "192.168.0.108:502", Options{}.Target())
}

func TestWriteSendsExactBytes(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	payload, err := ParseHex("12 34 56")
	require.NoError(t, err)
	require.NoError(t, conn.Write(payload))

	got := make([]byte, 3)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(peer, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34, 0x56}, got)
}

func TestIsAliveWhileOpen(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	assert.True(t, conn.IsAlive())
	assert.True(t, conn.IsAlive())
}

func TestIsAliveFalseAfterPeerClose(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	require.True(t, conn.IsAlive())
	require.NoError(t, peer.Close())

	assert.Eventually(t, func() bool { return !conn.IsAlive() },
		2*time.Second, 10*time.Millisecond)
}

func TestIsAliveDoesNotConsumeData(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	_, err := peer.Write([]byte{0xAA, 0xBB})
	require.NoError(t, err)

	ready, err := conn.WaitForData(context.Background(), time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready)

	for i := 0; i < 5; i++ {
		assert.True(t, conn.IsAlive())
	}

	// Allow for the two bytes landing in separate segments.
	var got []byte
	for len(got) < 2 {
		chunk, err := conn.ReadResponse()
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, []byte{0xAA, 0xBB}, got)
}

func TestIsAliveWithPendingDataAndFIN(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	_, err := peer.Write([]byte{0x01})
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	// Pending data keeps the connection readable until it has been read.
	ready, err := conn.WaitForData(context.Background(), time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready)
	assert.True(t, conn.IsAlive())

	got, err := conn.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)

	assert.Eventually(t, func() bool { return !conn.IsAlive() },
		2*time.Second, 10*time.Millisecond)
}

func TestWaitForDataTimeout(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	start := time.Now()
	ready, err := conn.WaitForData(context.Background(), 150*time.Millisecond, 10*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ready)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestWaitForDataNonPositiveArgumentsUseDefaults(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	_, err := peer.Write([]byte{0x01})
	require.NoError(t, err)

	var ready bool
	require.NotPanics(t, func() {
		ready, err = conn.WaitForData(context.Background(), 0, 0)
	})
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestWaitForDataZeroIntervalTimesOut(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	var ready bool
	var err error
	require.NotPanics(t, func() {
		ready, err = conn.WaitForData(context.Background(), 100*time.Millisecond, -time.Second)
	})
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestWaitForDataArrivesMidWait(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_, _ = peer.Write([]byte{0x42})
	}()

	ready, err := conn.WaitForData(context.Background(), time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ready)

	got, err := conn.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, got)
}

func TestWaitForDataCanceled(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ready, err := conn.WaitForData(ctx, 5*time.Second, 10*time.Millisecond)
	assert.False(t, ready)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadResponsePeerClosed(t *testing.T) {
	d := startFakeDevice(t)
	conn, peer := dialDevice(t, d)

	require.NoError(t, peer.Close())

	ready, err := conn.WaitForData(context.Background(), time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready, "EOF counts as ready")

	_, err = conn.ReadResponse()
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read", ioErr.Op)
	assert.ErrorIs(t, err, ErrPeerClosed)
	assert.True(t, IsPeerClosed(err))
}

func TestReleaseIsIdempotentAndConcurrent(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Release()
		}()
	}
	wg.Wait()
	conn.Release()

	assert.True(t, conn.Released())
	assert.False(t, conn.IsAlive())

	err := conn.Write([]byte{0x01})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = conn.ReadResponse()
	assert.ErrorIs(t, err, ErrClosed)

	_, err = conn.WaitForData(context.Background(), 50*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReleaseDuringWait(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	done := make(chan error, 1)
	go func() {
		_, err := conn.WaitForData(context.Background(), 5*time.Second, 5*time.Millisecond)
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	conn.Release()

	select {
	case err := <-done:
		var ioErr *IOError
		assert.True(t, errors.As(err, &ioErr), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForData did not return after Release")
	}
}

func TestReceiveBufferSize(t *testing.T) {
	d := startFakeDevice(t)
	conn, _ := dialDevice(t, d)

	size := conn.ReceiveBufferSize()
	assert.Greater(t, size, 0)
	assert.LessOrEqual(t, size, maxReadBufferSize)
}

func TestClampReadBufferSize(t *testing.T) {
	assert.Equal(t, DefaultReadBufferSize, clampReadBufferSize(0))
	assert.Equal(t, DefaultReadBufferSize, clampReadBufferSize(-1))
	assert.Equal(t, 8192, clampReadBufferSize(8192))
	assert.Equal(t, maxReadBufferSize, clampReadBufferSize(maxReadBufferSize*4))
}
