// =============================================================================
// connect.go - Connect / Reconnect Loop
// =============================================================================
//
// The console runs unattended next to a device that reboots, drops Wi-Fi
// and gets unplugged. No connection failure is fatal: the outer loop
// connects, runs a session until it ends, releases the socket and, unless
// shutdown was requested, waits RetryDelay and tries again.
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/LayAlex/ESP-TCP-UART-Gateway/rawtcp"
)

// run is the outer loop. It returns once shutdown has been requested.
func (c *console) run() {
	defer c.manager.Release()

	for !c.shutdown.Requested() {
		fmt.Fprintf(c.out, "Connecting to %s...\n", c.manager.Target())

		conn, err := c.manager.Connect(c.shutdown.Context())
		if err != nil {
			if c.shutdown.Requested() {
				return
			}
			fmt.Fprintf(c.out, "Connection failed: %s\n", describeConnectError(err))
		} else {
			fmt.Fprintln(c.out, "Connected.")
			result := c.runSession(conn)
			c.manager.Release()
			c.logger.Debug("session ended", "result", result.String())
			if result != sessionLost {
				return
			}
		}

		if !c.waitBeforeRetry() {
			return
		}
	}
}

// waitBeforeRetry pauses for RetryDelay. It returns false if shutdown was
// requested instead.
//
// GO CONCEPT: Timers vs. time.Sleep
// ---------------------------------
// time.Sleep cannot be interrupted. A time.Timer delivers on a channel, so
// it can sit in a select next to the shutdown channel and the wait ends at
// whichever comes first. Stop releases the timer if shutdown wins.
//
// Compare with Python: threading.Event().wait(timeout) returns early when
// the event is set, which is exactly this select.
func (c *console) waitBeforeRetry() bool {
	if c.shutdown.Requested() {
		return false
	}
	if c.cfg.RetryDelay <= 0 {
		fmt.Fprintln(c.out, "Reconnecting...")
		return true
	}

	fmt.Fprintf(c.out, "Reconnecting in %s...\n", c.cfg.RetryDelay)
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.shutdown.Done():
		return false
	}
}

// describeConnectError renders a connect failure for the user.
func describeConnectError(err error) string {
	var ce *rawtcp.ConnectError
	if !errors.As(err, &ce) {
		return err.Error()
	}

	switch ce.Reason {
	case rawtcp.ReasonRefused:
		return fmt.Sprintf("%s refused the connection (is the device listening?)", ce.Target)
	case rawtcp.ReasonTimeout:
		return fmt.Sprintf("%s did not answer in time", ce.Target)
	case rawtcp.ReasonUnreachable:
		return fmt.Sprintf("%s is unreachable (check the network)", ce.Target)
	case rawtcp.ReasonDNS:
		return fmt.Sprintf("cannot resolve %s: %v", ce.Target, ce.Cause)
	default:
		return ce.Error()
	}
}
