package channel

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"wcferry/pkg/codec"
	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/injector"
	"wcferry/pkg/protocol"
)

// pipeDialer hands out one side of an in-process pipe and runs the given
// peer function on the other side.
type pipeDialer struct {
	serve func(net.Conn)
}

func (d *pipeDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go d.serve(server)
	return client, nil
}

// commandPeer decodes inbound command frames and lets handler produce the
// response, or nil to swallow the command.
func commandPeer(handler func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response) func(net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		for {
			tag, body, err := codec.ReadFrame(conn)
			if err != nil {
				return
			}
			r := codec.NewReader(body)
			seq := r.Uint32()
			resp := handler(protocol.Opcode(tag), seq, body[4:])
			if resp == nil {
				continue
			}
			if err := codec.WriteFrame(conn, uint16(resp.Opcode), resp.EncodeBody()); err != nil {
				return
			}
		}
	}
}

// okPeer answers every command immediately with StatusOK.
func okPeer() func(net.Conn) {
	return commandPeer(func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response {
		return &protocol.Response{Opcode: op, Seq: seq, Status: protocol.StatusOK, Payload: payload}
	})
}

func injectedHandle() *injector.PeerHandle {
	return injector.NewInjectedHandle(1234)
}

// TestConnectRequiresInjectedPeer tests the injection gate
func TestConnectRequiresInjectedPeer(t *testing.T) {
	ch := NewCommandChannel(&pipeDialer{serve: okPeer()}, "peer")

	if err := ch.Connect(context.Background(), nil); !errors.Is(err, wcferrors.ErrNotInjected) {
		t.Errorf("Connect(nil handle) err = %v, want ErrNotInjected", err)
	}
	if ch.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", ch.State())
	}
}

// TestConnectTwice tests double connect rejection
func TestConnectTwice(t *testing.T) {
	ch := NewCommandChannel(&pipeDialer{serve: okPeer()}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	if err := ch.Connect(context.Background(), injectedHandle()); !errors.Is(err, wcferrors.ErrAlreadyConnected) {
		t.Errorf("second Connect err = %v, want ErrAlreadyConnected", err)
	}
}

// TestConnectFailure tests dial errors
func TestConnectFailure(t *testing.T) {
	ch := NewCommandChannel(&TCPDialer{Timeout: 200 * time.Millisecond}, "127.0.0.1:1")
	err := ch.Connect(context.Background(), injectedHandle())
	if !errors.Is(err, wcferrors.ErrConnectFailed) {
		t.Errorf("err = %v, want ErrConnectFailed", err)
	}
	if ch.State() != Disconnected {
		t.Errorf("state = %s, want disconnected after failed connect", ch.State())
	}
}

// TestSendPingPong tests one complete exchange
func TestSendPingPong(t *testing.T) {
	ch := NewCommandChannel(&pipeDialer{serve: okPeer()}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	resp, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpPing, nil), 2*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !resp.Ok() {
		t.Errorf("response status = %d, want ok", resp.Status)
	}
	if resp.Opcode != protocol.OpPing {
		t.Errorf("response opcode = %s", resp.Opcode.Name())
	}
}

// TestSendNotConnected tests sending before connect
func TestSendNotConnected(t *testing.T) {
	ch := NewCommandChannel(&pipeDialer{serve: okPeer()}, "peer")
	_, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpPing, nil), time.Second)
	if !errors.Is(err, wcferrors.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

// TestConcurrentSends tests correlation under many simultaneous callers
func TestConcurrentSends(t *testing.T) {
	// Peer echoes the seq back inside the payload so mismatched delivery
	// would be visible, and answers out of order under random scheduling.
	peer := commandPeer(func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response {
		body := codec.NewWriter().Uint32(seq).Bytes()
		return &protocol.Response{Opcode: op, Seq: seq, Status: protocol.StatusOK, Payload: body}
	})
	ch := NewCommandChannel(&pipeDialer{serve: peer}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	const callers = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint32]bool)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := protocol.NewCommand(protocol.OpIsLogin, nil)
			resp, err := ch.Send(context.Background(), cmd, 5*time.Second)
			if err != nil {
				t.Errorf("Send failed: %v", err)
				return
			}
			echoed := codec.NewReader(resp.Payload).Uint32()
			if echoed != cmd.Seq {
				t.Errorf("response for seq %d delivered to caller with seq %d", echoed, cmd.Seq)
			}
			mu.Lock()
			if seen[cmd.Seq] {
				t.Errorf("correlation id %d assigned twice", cmd.Seq)
			}
			seen[cmd.Seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != callers {
		t.Errorf("distinct correlation ids = %d, want %d", len(seen), callers)
	}
}

// TestAutoSeqSkipsInFlightCallerSeq tests that an auto-assigned id never
// collides with a caller-supplied id that is still waiting
func TestAutoSeqSkipsInFlightCallerSeq(t *testing.T) {
	// Peer swallows IS_LOGIN so its caller-supplied id stays in flight, and
	// answers everything else normally.
	peer := commandPeer(func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response {
		if op == protocol.OpIsLogin {
			return nil
		}
		return &protocol.Response{Opcode: op, Seq: seq, Status: protocol.StatusOK}
	})
	ch := NewCommandChannel(&pipeDialer{serve: peer}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	// A fresh channel's next auto id would be 1; occupy it explicitly.
	firstErr := make(chan error, 1)
	go func() {
		cmd := protocol.NewCommand(protocol.OpIsLogin, nil)
		cmd.Seq = 1
		_, err := ch.Send(context.Background(), cmd, 500*time.Millisecond)
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		ch.mu.Lock()
		_, inFlight := ch.pending[1]
		ch.mu.Unlock()
		if inFlight {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("caller-supplied command never registered")
		}
		time.Sleep(time.Millisecond)
	}

	resp, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpPing, nil), 2*time.Second)
	if err != nil {
		t.Fatalf("auto-assigned Send failed: %v", err)
	}
	if resp.Seq == 1 {
		t.Fatal("auto-assigned id collided with in-flight caller-supplied id 1")
	}
	if resp.Seq != 2 {
		t.Errorf("auto-assigned seq = %d, want 2", resp.Seq)
	}

	// The occupied slot must still belong to the first caller: it times out
	// because the peer swallowed it, not because anyone stole its slot.
	if err := <-firstErr; !errors.Is(err, wcferrors.ErrTimeout) {
		t.Errorf("caller-supplied send err = %v, want ErrTimeout", err)
	}
}

// TestSendTimeout tests slot release and stale response discard
func TestSendTimeout(t *testing.T) {
	peer := commandPeer(func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response {
		if op == protocol.OpIsLogin {
			// Answer far too late.
			time.Sleep(300 * time.Millisecond)
		}
		return &protocol.Response{Opcode: op, Seq: seq, Status: protocol.StatusOK}
	})
	ch := NewCommandChannel(&pipeDialer{serve: peer}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	_, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpIsLogin, nil), 50*time.Millisecond)
	if !errors.Is(err, wcferrors.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// The channel stays healthy and the late response for the timed-out
	// command must not satisfy this new one.
	resp, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpPing, nil), 2*time.Second)
	if err != nil {
		t.Fatalf("Send after timeout failed: %v", err)
	}
	if resp.Opcode != protocol.OpPing {
		t.Errorf("got response for %s, want PING", resp.Opcode.Name())
	}
	if ch.State() != Connected {
		t.Errorf("state = %s, want connected after local timeout", ch.State())
	}
}

// TestSendCancel tests caller-initiated cancellation
func TestSendCancel(t *testing.T) {
	silent := commandPeer(func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response {
		return nil
	})
	ch := NewCommandChannel(&pipeDialer{serve: silent}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ch.Send(ctx, protocol.NewCommand(protocol.OpPing, nil), 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if ch.State() != Connected {
		t.Errorf("state = %s, cancellation must not fault the channel", ch.State())
	}
}

// TestMalformedFrameFaultsChannel tests escalation of format errors
func TestMalformedFrameFaultsChannel(t *testing.T) {
	// Peer replies with a frame whose declared length is below the tag size.
	garbage := func(conn net.Conn) {
		defer conn.Close()
		if _, _, err := codec.ReadFrame(conn); err != nil {
			return
		}
		conn.Write([]byte{0x01, 0x00, 0x00, 0x00, 0xff})
	}
	ch := NewCommandChannel(&pipeDialer{serve: garbage}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpPing, nil), 2*time.Second)
	if !errors.Is(err, wcferrors.ErrChannelFault) {
		t.Fatalf("err = %v, want ErrChannelFault", err)
	}
	if ch.State() != Faulted {
		t.Errorf("state = %s, want faulted", ch.State())
	}

	// A faulted channel rejects further sends until reconnected.
	_, err = ch.Send(context.Background(), protocol.NewCommand(protocol.OpPing, nil), time.Second)
	if !errors.Is(err, wcferrors.ErrChannelFault) {
		t.Errorf("send on faulted channel err = %v, want ErrChannelFault", err)
	}
}

// TestPeerDisconnectFailsInflight tests that all outstanding sends fail
func TestPeerDisconnectFailsInflight(t *testing.T) {
	// Peer accepts several commands, answers none, then drops the link.
	received := make(chan struct{}, 8)
	dropper := func(conn net.Conn) {
		for i := 0; i < 3; i++ {
			if _, _, err := codec.ReadFrame(conn); err != nil {
				conn.Close()
				return
			}
			received <- struct{}{}
		}
		conn.Close()
	}
	ch := NewCommandChannel(&pipeDialer{serve: dropper}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ch.Send(context.Background(), protocol.NewCommand(protocol.OpIsLogin, nil), 10*time.Second)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, wcferrors.ErrChannelFault) {
			t.Errorf("in-flight send err = %v, want ErrChannelFault", err)
		}
	}
	if ch.State() != Faulted {
		t.Errorf("state = %s, want faulted", ch.State())
	}
}

// TestDisconnectIdempotent tests repeated disconnects
func TestDisconnectIdempotent(t *testing.T) {
	ch := NewCommandChannel(&pipeDialer{serve: okPeer()}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ch.Disconnect()
	ch.Disconnect()
	if ch.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", ch.State())
	}
}

// TestCallerSuppliedSeqCollision tests rejection of duplicate in-flight ids
func TestCallerSuppliedSeqCollision(t *testing.T) {
	silent := commandPeer(func(op protocol.Opcode, seq uint32, payload []byte) *protocol.Response {
		return nil
	})
	ch := NewCommandChannel(&pipeDialer{serve: silent}, "peer")
	if err := ch.Connect(context.Background(), injectedHandle()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	first := protocol.NewCommand(protocol.OpPing, nil)
	first.Seq = 777
	go ch.Send(context.Background(), first, 5*time.Second)

	// Wait until the first command is actually in flight.
	time.Sleep(50 * time.Millisecond)

	dup := protocol.NewCommand(protocol.OpPing, nil)
	dup.Seq = 777
	if _, err := ch.Send(context.Background(), dup, time.Second); err == nil {
		t.Error("Send accepted a duplicate in-flight correlation id")
	}
}
