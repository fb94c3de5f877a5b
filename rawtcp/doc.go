// Package rawtcp provides the connection side of the ESP console: a single
// raw TCP connection to an embedded endpoint, a non-destructive liveness
// probe, a bounded wait for response data, and the hex codec used to turn
// typed commands into bytes and received bytes back into text.
//
// There is no framing. Whatever the user types is decoded to bytes and
// written as-is; whatever arrives within the response window is read in one
// chunk and shown as uppercase hex pairs.
//
// # Basic Usage
//
// Create a manager for the target and connect:
//
//	mgr := rawtcp.NewManager(rawtcp.Options{
//	    Address: "192.168.0.108",
//	    Port:    502,
//	})
//	conn, err := mgr.Connect(ctx)
//	if err != nil {
//	    var ce *rawtcp.ConnectError
//	    if errors.As(err, &ce) {
//	        fmt.Println("connect failed:", ce.Reason)
//	    }
//	    return
//	}
//	defer mgr.Release()
//
// Send a command and wait for the answer:
//
//	payload, err := rawtcp.ParseHex("01 03 00 00 00 0A")
//	if err != nil {
//	    return err // *rawtcp.FormatError, connection untouched
//	}
//	if !conn.IsAlive() {
//	    return rawtcp.ErrPeerClosed
//	}
//	if err := conn.Write(payload); err != nil {
//	    return err
//	}
//	ready, err := conn.WaitForData(ctx, rawtcp.ResponseTimeout, rawtcp.PollInterval)
//	if err != nil || !ready {
//	    return err
//	}
//	resp, err := conn.ReadResponse()
//	fmt.Println(rawtcp.FormatHex(resp))
//
// # Liveness
//
// TCP lets a peer half-close silently, so a successful connect says nothing
// about the state of the socket a minute later. [Conn.IsAlive] peeks at the
// socket without consuming anything: on unix systems it uses
// recvfrom(MSG_PEEK|MSG_DONTWAIT) on the raw descriptor, elsewhere it peeks
// through the connection's buffered reader with an already-expired deadline.
// A readable socket that yields zero bytes means the peer sent FIN.
//
// # Thread Safety
//
// A Conn is driven by one goroutine. [Conn.Release] and [Manager.Release]
// are the exception: they may be called from any goroutine (typically a
// signal handler) at any time, any number of times. An operation that was
// in flight when the connection was released fails with an [*IOError].
package rawtcp
