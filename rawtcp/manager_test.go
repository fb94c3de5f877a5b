package rawtcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerConnectReplacesCurrent(t *testing.T) {
	d := startFakeDevice(t)
	mgr := NewManager(d.options())
	t.Cleanup(mgr.Release)

	first, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	d.accept(t)
	assert.Same(t, first, mgr.Current())

	second, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	d.accept(t)

	assert.True(t, first.Released(), "previous connection must be released")
	assert.False(t, second.Released())
	assert.Same(t, second, mgr.Current())
}

func TestManagerRelease(t *testing.T) {
	d := startFakeDevice(t)
	mgr := NewManager(d.options())

	// Nothing to release yet.
	mgr.Release()
	assert.Nil(t, mgr.Current())

	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	d.accept(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Release()
		}()
	}
	wg.Wait()

	assert.Nil(t, mgr.Current())
	assert.True(t, conn.Released())
}

func TestManagerConnectCanceled(t *testing.T) {
	d := startFakeDevice(t)
	mgr := NewManager(d.options())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Connect(ctx)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonCanceled, ce.Reason)
	assert.Nil(t, mgr.Current())
}

func TestManagerTarget(t *testing.T) {
	mgr := NewManager(Options{Address: "10.0.0.7", Port: 8080})
	assert.Equal(t, "10.0.0.7:8080", mgr.Target())
	assert.Equal(t, DefaultSendTimeout, mgr.Options().SendTimeout)
}
