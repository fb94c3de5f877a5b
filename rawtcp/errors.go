package rawtcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Sentinel errors.
var (
	// ErrClosed is returned by Conn operations after Release.
	ErrClosed = errors.New("connection released")

	// ErrPeerClosed means the remote end closed its side of the connection.
	ErrPeerClosed = errors.New("connection closed by peer")
)

// FormatError reports user input that is not a sequence of hex byte pairs.
type FormatError struct {
	Kind  FormatErrorKind
	Value string // The offending pair, or the normalized input for length errors
	Index int    // Zero-based pair index for FormatInvalidByte
}

// FormatErrorKind categorizes hex parse failures.
type FormatErrorKind int

const (
	// FormatEmpty means the input contained no hex digits at all.
	FormatEmpty FormatErrorKind = iota
	// FormatOddLength means the digit count was not even.
	FormatOddLength
	// FormatInvalidByte means a pair was not two hex digits.
	FormatInvalidByte
)

func (e *FormatError) Error() string {
	switch e.Kind {
	case FormatEmpty:
		return "no hex bytes given"
	case FormatOddLength:
		return fmt.Sprintf("odd number of hex digits (%d): every byte needs two digits", len(e.Value))
	case FormatInvalidByte:
		return fmt.Sprintf("invalid hex byte '%s' at position %d", e.Value, e.Index+1)
	default:
		return fmt.Sprintf("invalid hex input '%s'", e.Value)
	}
}

func newOddLengthError(digits string) error {
	return &FormatError{Kind: FormatOddLength, Value: digits}
}

func newInvalidByteError(pair string, index int) error {
	return &FormatError{Kind: FormatInvalidByte, Value: pair, Index: index}
}

// ConnectReason classifies why a connect attempt failed.
type ConnectReason string

const (
	ReasonRefused     ConnectReason = "refused"
	ReasonTimeout     ConnectReason = "timeout"
	ReasonUnreachable ConnectReason = "unreachable"
	ReasonDNS         ConnectReason = "dns"
	ReasonCanceled    ConnectReason = "canceled"
	ReasonOther       ConnectReason = "other"
)

// ConnectError reports a failed connect attempt. It is always recoverable:
// the caller is expected to wait and try again.
type ConnectError struct {
	Target string
	Reason ConnectReason
	Cause  error
}

func (e *ConnectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connect %s failed (%s): %v", e.Target, e.Reason, e.Cause)
	}
	return fmt.Sprintf("connect %s failed (%s)", e.Target, e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// NewConnectError classifies cause and wraps it.
func NewConnectError(target string, cause error) error {
	return &ConnectError{Target: target, Reason: classifyConnectError(cause), Cause: cause}
}

func classifyConnectError(err error) ConnectReason {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case err == nil:
		return ReasonOther
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return ReasonTimeout
		}
		return ReasonDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return ReasonUnreachable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	default:
		return ReasonOther
	}
}

// IOError reports a failure while talking to a connected peer. It ends the
// session; the connection must be released and re-established.
type IOError struct {
	Op    string // "write", "read" or "probe"
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}

func newIOError(op string, cause error) error {
	return &IOError{Op: op, Cause: cause}
}

// IsPeerClosed reports whether err means the remote end went away.
func IsPeerClosed(err error) bool {
	return errors.Is(err, ErrPeerClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
