// Package transport implements the client side of the frame protocol: a
// multiplexed connection and a per-address pool of them.
//
// Each request gets a sequence number and a pending cell. A receive loop
// reads responses and completes the cell with the matching number, so many
// calls share one connection:
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single conn ──→ server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop: ←── response(seq=2) → pending[2].Succeed(resp)
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"callproxy/codec"
	"callproxy/message"
	"callproxy/protocol"
	"callproxy/result"

	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"
)

// DefaultHeartbeat is the heartbeat interval used by NewClientTransport.
const DefaultHeartbeat = 30 * time.Second

// A ClosedError fails calls that were still pending, or newly sent, when the
// connection was torn down. Err is what stopped the connection: a read or
// write error, a malformed frame, or a local Close.
type ClosedError struct {
	Err error
}

func (e *ClosedError) Error() string { return "transport closed: " + e.Err.Error() }

func (e *ClosedError) Unwrap() error { return e.Err }

// SessionClosed reports true; see failure.IsSessionClosed.
func (e *ClosedError) SessionClosed() bool { return true }

// ClientTransport multiplexes calls over one connection.
type ClientTransport struct {
	conn  net.Conn
	codec codec.Codec
	log   *zap.Logger
	tasks *taskgroup.Group
	stop  chan struct{}
	halt  sync.Once

	sending sync.Mutex // serializes frame writes and seq allocation
	seq     uint32

	μ       sync.Mutex
	pending map[uint32]*result.Pending
	err     error // set once the receive loop exits
}

// NewClientTransport starts the receive and heartbeat loops for conn.
// Envelopes are encoded with the codec of type ct.
func NewClientTransport(conn net.Conn, ct codec.CodecType, log *zap.Logger) *ClientTransport {
	return newClientTransport(conn, ct, log, DefaultHeartbeat)
}

func newClientTransport(conn net.Conn, ct codec.CodecType, log *zap.Logger, heartbeat time.Duration) *ClientTransport {
	if log == nil {
		log = zap.NewNop()
	}
	t := &ClientTransport{
		conn:    conn,
		codec:   codec.GetCodec(ct),
		log:     log.With(zap.String("remote", conn.RemoteAddr().String())),
		tasks:   taskgroup.New(nil),
		stop:    make(chan struct{}),
		pending: make(map[uint32]*result.Pending),
	}
	t.tasks.Go(func() error { t.recvLoop(); return nil })
	t.tasks.Go(func() error { t.heartbeatLoop(heartbeat); return nil })
	return t
}

// Send writes req and returns a cell that completes with the response
// envelope, or with the connection error if the connection breaks first.
func (t *ClientTransport) Send(req *message.RPCMessage) (*result.Pending, error) {
	body, err := t.codec.Encode(req)
	if err != nil {
		return nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq
	p := result.New()

	// Register before writing so the receive loop cannot miss the response.
	t.μ.Lock()
	if t.err != nil {
		err := t.err
		t.μ.Unlock()
		return nil, err
	}
	t.pending[seq] = p
	t.μ.Unlock()

	hdr := protocol.Header{CodecType: t.codec.Type(), MsgType: protocol.MsgTypeRequest, Seq: seq}
	if err := protocol.Encode(t.conn, &hdr, body); err != nil {
		t.μ.Lock()
		delete(t.pending, seq)
		t.μ.Unlock()
		return nil, &ClosedError{Err: err}
	}
	return p, nil
}

// Err reports why the transport stopped, or nil if it is still usable.
func (t *ClientTransport) Err() error {
	t.μ.Lock()
	defer t.μ.Unlock()
	return t.err
}

// Close closes the connection, fails every pending call, and waits for the
// service loops to exit.
func (t *ClientTransport) Close() error {
	t.halt.Do(func() { close(t.stop) })
	err := t.conn.Close()
	t.tasks.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Pending reports the number of calls awaiting a response.
func (t *ClientTransport) Pending() int {
	t.μ.Lock()
	defer t.μ.Unlock()
	return len(t.pending)
}

func (t *ClientTransport) recvLoop() {
	for {
		hdr, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.closeAllPending(err)
			return
		}
		if hdr.MsgType != protocol.MsgTypeResponse {
			continue
		}

		t.μ.Lock()
		p, ok := t.pending[hdr.Seq]
		delete(t.pending, hdr.Seq)
		t.μ.Unlock()
		if !ok {
			t.log.Warn("response for unknown call", zap.Uint32("seq", hdr.Seq))
			continue
		}

		var resp message.RPCMessage
		if err := codec.GetCodec(hdr.CodecType).Decode(body, &resp); err != nil {
			p.Fail(fmt.Errorf("decode response: %w", err))
			continue
		}
		p.Succeed(&resp)
	}
}

// closeAllPending records err as the terminal error and fails every pending
// call with it, so no caller waits forever.
func (t *ClientTransport) closeAllPending(err error) {
	t.μ.Lock()
	t.err = &ClosedError{Err: err}
	pending := t.pending
	t.pending = make(map[uint32]*result.Pending)
	t.μ.Unlock()

	if len(pending) != 0 {
		t.log.Debug("failing pending calls", zap.Int("count", len(pending)), zap.Error(err))
	}
	for _, p := range pending {
		p.Fail(t.err)
	}
	t.halt.Do(func() { close(t.stop) })
	t.conn.Close()
}

func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
		hdr := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		t.sending.Lock()
		err := protocol.Encode(t.conn, hdr, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}
