package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"wcferry/pkg/codec"
	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/injector"
	"wcferry/pkg/logger"
	"wcferry/pkg/protocol"
)

// CommandChannel is the synchronous request/response connection to the peer.
// Any number of goroutines may call Send concurrently; each gets its own
// correlation identifier and its own response.
type CommandChannel struct {
	dialer Dialer
	addr   string
	log    *logger.Logger

	// mu guards state, conn, pending, and seq. The correlation table has a
	// single serialization point so correctness does not depend on how
	// concurrent sends interleave.
	mu      sync.Mutex
	state   State
	conn    net.Conn
	pending map[uint32]chan *protocol.Response
	// seq is monotonically increasing for the channel's lifetime and never
	// reset on reconnect, so an identifier is only ever reused after 2^32
	// commands. Stale traffic from a previous epoch cannot satisfy a newer
	// command by accident.
	seq uint32

	// writeMu serializes frame writes so concurrent sends cannot interleave
	// bytes on the wire.
	writeMu sync.Mutex
}

// NewCommandChannel creates a disconnected command channel for the given
// peer endpoint.
func NewCommandChannel(dialer Dialer, addr string) *CommandChannel {
	return &CommandChannel{
		dialer:  dialer,
		addr:    addr,
		log:     logger.Get().With("channel", "command"),
		state:   Disconnected,
		pending: make(map[uint32]chan *protocol.Response),
	}
}

// State returns the current channel state.
func (c *CommandChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect performs the transport-level handshake. The peer handle must be
// in the Injected state.
func (c *CommandChannel) Connect(ctx context.Context, handle *injector.PeerHandle) error {
	if handle == nil || handle.State() != injector.StateInjected {
		return wcferrors.ErrNotInjected
	}

	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return wcferrors.ErrAlreadyConnected
	}
	c.state = Connecting
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.addr)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", wcferrors.ErrConnectFailed, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Connected
	c.pending = make(map[uint32]chan *protocol.Response)
	c.mu.Unlock()

	go c.readLoop(conn)
	c.log.InfoWith("command channel connected", "addr", c.addr)
	return nil
}

// Disconnect closes the channel. Idempotent; outstanding commands fail with
// ErrChannelFault.
func (c *CommandChannel) Disconnect() {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.log.InfoWith("command channel disconnected")
}

// Send writes the command and blocks until the matching response arrives,
// the timeout elapses, the caller's ctx is canceled, or the channel faults.
// A fresh correlation identifier is assigned when the caller left Seq zero.
func (c *CommandChannel) Send(ctx context.Context, cmd *protocol.Command, timeout time.Duration) (*protocol.Response, error) {
	c.mu.Lock()
	if c.state != Connected {
		state := c.state
		c.mu.Unlock()
		if state == Faulted {
			return nil, wcferrors.ErrChannelFault
		}
		return nil, wcferrors.ErrNotConnected
	}
	conn := c.conn

	if cmd.Seq == 0 {
		// Skip zero ("assign one") and any identifier a caller-supplied
		// command is still using, so ids stay unique across both kinds of
		// senders. Bounded: at most len(pending)+1 live ids can be taken.
		for {
			c.seq++
			if c.seq == 0 {
				continue
			}
			if _, taken := c.pending[c.seq]; !taken {
				break
			}
		}
		cmd.Seq = c.seq
	} else if _, taken := c.pending[cmd.Seq]; taken {
		c.mu.Unlock()
		return nil, fmt.Errorf("correlation id %d already in flight", cmd.Seq)
	}

	respCh := make(chan *protocol.Response, 1)
	c.pending[cmd.Seq] = respCh
	c.mu.Unlock()

	if err := c.writeFrame(conn, cmd); err != nil {
		c.fault(err)
		return nil, wcferrors.ErrChannelFault
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, wcferrors.ErrChannelFault
		}
		return resp, nil
	case <-timer.C:
		// Release the slot so the late response is discarded instead of
		// reaching whoever sends next.
		c.removePending(cmd.Seq)
		return nil, fmt.Errorf("%w: %s after %s", wcferrors.ErrTimeout, cmd.Opcode.Name(), timeout)
	case <-ctx.Done():
		c.removePending(cmd.Seq)
		return nil, fmt.Errorf("send canceled: %w", ctx.Err())
	}
}

func (c *CommandChannel) writeFrame(conn net.Conn, cmd *protocol.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return codec.WriteFrame(conn, uint16(cmd.Opcode), cmd.EncodeBody())
}

// readLoop matches inbound responses to waiting callers. It exits on the
// first I/O or decode error; a frame that cannot be parsed means the stream
// is no longer trustworthy, so decode failures fault the whole channel.
func (c *CommandChannel) readLoop(conn net.Conn) {
	for {
		tag, body, err := codec.ReadFrame(conn)
		if err != nil {
			c.fault(err)
			return
		}
		resp, err := protocol.DecodeResponse(tag, body)
		if err != nil {
			c.fault(err)
			return
		}

		c.mu.Lock()
		respCh, ok := c.pending[resp.Seq]
		if ok {
			delete(c.pending, resp.Seq)
		}
		c.mu.Unlock()

		if !ok {
			// Late or unsolicited response: protocol noise, not a fault.
			c.log.WarnWith("discarding unmatched response", "seq", resp.Seq, "opcode", resp.Opcode.Name())
			continue
		}
		respCh <- resp
	}
}

// fault drops the channel to Faulted and fails every in-flight command. A
// read error after a deliberate Disconnect is not a fault.
func (c *CommandChannel) fault(cause error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Faulted
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.log.ErrorWithErr("command channel faulted", cause)
}

// failPendingLocked closes every pending response slot; waiters observe the
// closed channel as ErrChannelFault. Caller holds mu.
func (c *CommandChannel) failPendingLocked() {
	for seq, respCh := range c.pending {
		close(respCh)
		delete(c.pending, seq)
	}
}

func (c *CommandChannel) removePending(seq uint32) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}
