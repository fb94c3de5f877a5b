// =============================================================================
// repl.go - Session Loop
// =============================================================================
//
// One session is one connected period. The loop reads a line, classifies
// it, and for hex input runs one exchange with the device:
//
//	parse -> liveness check -> write -> wait (2s, 50ms polls) -> read -> print
//
// A malformed line is reported and the session continues. Anything that
// means the connection is gone (probe says dead, write or read fails, the
// device closes while we wait) ends the session with sessionLost so the
// outer loop in connect.go reconnects. "exit" and end of input end the
// program; an interrupt ends it too.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/LayAlex/ESP-TCP-UART-Gateway/rawtcp"
)

// prompt is shown before each command.
const prompt = "> "

// sessionResult tells the outer loop what to do after a session ends.
type sessionResult int

const (
	// sessionLost means the connection failed; reconnect.
	sessionLost sessionResult = iota
	// sessionExit means the user asked to leave (exit or end of input).
	sessionExit
	// sessionInterrupted means shutdown was requested from outside.
	sessionInterrupted
)

func (r sessionResult) String() string {
	switch r {
	case sessionLost:
		return "lost"
	case sessionExit:
		return "exit"
	case sessionInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// console holds what both loops share.
type console struct {
	cfg      Config
	manager  *rawtcp.Manager
	input    *lineSource
	shutdown *Shutdown
	out      io.Writer
	logger   *slog.Logger
}

// runSession drives one connected session until it ends.
func (c *console) runSession(conn *rawtcp.Conn) sessionResult {
	fmt.Fprintln(c.out, "Enter hex bytes separated by spaces (e.g. 12 34 56)")
	fmt.Fprintf(c.out, "or '%s' to quit:\n", rawtcp.ExitKeyword)

	for !c.shutdown.Requested() {
		if !conn.IsAlive() {
			fmt.Fprintln(c.out, "Connection lost.")
			return sessionLost
		}

		line, err := c.input.Next(c.shutdown.Done(), prompt)
		if errors.Is(err, errLineTooLong) {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}
		if err != nil {
			return c.inputEnded(err)
		}

		cmd, err := rawtcp.ParseCommand(line)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}

		switch cmd.Kind {
		case rawtcp.CommandEmpty:
			continue
		case rawtcp.CommandExit:
			c.requestExit()
			return sessionExit
		}

		// Bytes typed against a dead connection are dropped, not queued.
		if !conn.IsAlive() {
			fmt.Fprintln(c.out, "Connection lost before sending. Reconnecting...")
			return sessionLost
		}

		if result, done := c.exchange(conn, cmd.Payload); done {
			return result
		}
	}
	return sessionInterrupted
}

// exchange sends payload and prints the answer. done is true when the
// session must end with result.
func (c *console) exchange(conn *rawtcp.Conn, payload []byte) (result sessionResult, done bool) {
	if err := conn.Write(payload); err != nil {
		return c.connectionFailed("send", err), true
	}
	fmt.Fprintf(c.out, "Sent: %s\n", rawtcp.FormatHex(payload))

	ready, err := conn.WaitForData(c.shutdown.Context(), c.cfg.ResponseTimeout, c.cfg.PollInterval)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return sessionInterrupted, true
		}
		return c.connectionFailed("wait for response", err), true
	}

	if !ready {
		if c.cfg.ReconnectOnTimeout {
			fmt.Fprintln(c.out, "No response (timeout). Disconnecting to reconnect...")
			c.logger.Info("response timeout, dropping connection", "timeout", c.cfg.ResponseTimeout)
			return sessionLost, true
		}
		fmt.Fprintln(c.out, "No response (timeout)")
		return 0, false
	}

	resp, err := conn.ReadResponse()
	if err != nil {
		if rawtcp.IsPeerClosed(err) {
			fmt.Fprintln(c.out, "No response (connection closed by device)")
			c.logger.Info("peer closed while waiting for response")
			return sessionLost, true
		}
		return c.connectionFailed("receive", err), true
	}

	fmt.Fprintf(c.out, "Received: %s\n", rawtcp.FormatHex(resp))
	return 0, false
}

// connectionFailed reports an I/O failure that ends the session. The
// shutdown check keeps an interrupt that closed the socket under us from
// being reported as a network problem.
func (c *console) connectionFailed(op string, err error) sessionResult {
	if c.shutdown.Requested() {
		return sessionInterrupted
	}
	fmt.Fprintf(c.out, "I/O error during %s (connection probably dropped): %v\n", op, err)
	c.logger.Warn("session ended", "op", op, "err", err)
	return sessionLost
}

// inputEnded maps a failed read from the user to a session result.
func (c *console) inputEnded(err error) sessionResult {
	switch {
	case errors.Is(err, errInputCanceled):
		return sessionInterrupted
	case errors.Is(err, io.EOF):
		fmt.Fprintln(c.out)
		c.requestExit()
		return sessionExit
	default:
		// The terminal is gone; there is nobody left to type commands.
		c.logger.Error("read input", "err", err)
		fmt.Fprintf(c.out, "Input error: %v\n", err)
		c.requestExit()
		return sessionExit
	}
}

func (c *console) requestExit() {
	fmt.Fprintln(c.out, "Shutting down...")
	c.shutdown.Request()
	c.manager.Release()
}
