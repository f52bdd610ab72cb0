package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"wcferry/pkg/codec"
	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/injector"
	"wcferry/pkg/logger"
	"wcferry/pkg/protocol"
)

// Predicate selects which events a subscriber receives. A nil predicate
// matches everything.
type Predicate func(*protocol.Event) bool

// Subscription is one listener's independent view of the event stream.
type Subscription struct {
	id        string
	predicate Predicate
	events    chan *protocol.Event
	dropped   atomic.Uint64

	mu     sync.Mutex
	closed bool
	err    error
}

// Events returns the subscriber's delivery queue. The channel is closed as
// the terminal stream-ended signal; check Err afterwards for the cause.
func (s *Subscription) Events() <-chan *protocol.Event {
	return s.events
}

// Dropped returns how many events were discarded for this subscriber under
// the drop-oldest backpressure policy.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Err returns the terminal cause after Events is closed: ErrChannelFault
// after a fault, nil after a clean disconnect or unsubscribe.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// close is called with the dispatcher lock held, so no delivery can race it.
func (s *Subscription) close(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = cause
	s.mu.Unlock()
	close(s.events)
}

// EventChannel is the one-directional streaming connection delivering
// unsolicited notifications from the peer to any number of subscribers.
type EventChannel struct {
	dialer  Dialer
	addr    string
	bufSize int
	log     *logger.Logger

	// mu guards state, conn, and the subscriber set. Dispatch runs under mu
	// as well, which is what makes Unsubscribe a hard barrier: once it
	// returns, no further event reaches that subscriber.
	mu    sync.Mutex
	state State
	conn  net.Conn
	subs  map[string]*Subscription
}

// NewEventChannel creates a disconnected event channel. bufSize is the
// bounded per-subscriber queue depth.
func NewEventChannel(dialer Dialer, addr string, bufSize int) *EventChannel {
	if bufSize <= 0 {
		bufSize = 128
	}
	return &EventChannel{
		dialer:  dialer,
		addr:    addr,
		bufSize: bufSize,
		log:     logger.Get().With("channel", "event"),
		state:   Disconnected,
		subs:    make(map[string]*Subscription),
	}
}

// State returns the current channel state.
func (c *EventChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect performs the transport-level handshake and starts the read loop.
// The peer handle must be in the Injected state.
func (c *EventChannel) Connect(ctx context.Context, handle *injector.PeerHandle) error {
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
	c.mu.Unlock()

	go c.readLoop(conn)
	c.log.InfoWith("event channel connected", "addr", c.addr)
	return nil
}

// Disconnect closes the channel and ends every subscription cleanly.
// Idempotent.
func (c *EventChannel) Disconnect() {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	conn := c.conn
	c.conn = nil
	c.closeSubsLocked(nil)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.log.InfoWith("event channel disconnected")
}

// Subscribe registers a listener. Events are delivered in emission order;
// when the subscriber's queue is full the oldest pending event is dropped
// and counted. Subscribing does not require the channel to be connected.
func (c *EventChannel) Subscribe(predicate Predicate) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		predicate: predicate,
		events:    make(chan *protocol.Event, c.bufSize),
	}

	c.mu.Lock()
	if c.state == Faulted {
		c.mu.Unlock()
		sub.close(wcferrors.ErrChannelFault)
		return sub
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a listener. After it returns no event is delivered to
// the subscription and its Events channel is closed. Safe to call while
// events are being dispatched, and safe to call twice.
func (c *EventChannel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	_, present := c.subs[sub.id]
	if present {
		delete(c.subs, sub.id)
		sub.close(nil)
	}
	c.mu.Unlock()
}

// SubscriberCount returns the number of active subscriptions.
func (c *EventChannel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// readLoop decodes frames and fans them out until the stream ends.
func (c *EventChannel) readLoop(conn net.Conn) {
	for {
		tag, body, err := codec.ReadFrame(conn)
		if err != nil {
			c.fault(err)
			return
		}
		c.dispatch(&protocol.Event{Kind: protocol.EventKind(tag), Payload: body})
	}
}

// dispatch fans one event out to every matching subscriber. The push never
// blocks: a full queue sheds its oldest entry first (drop-oldest policy), so
// a slow consumer costs itself events rather than stalling the read loop.
func (c *EventChannel) dispatch(evt *protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return
	}
	for _, sub := range c.subs {
		if sub.predicate != nil && !sub.predicate(evt) {
			continue
		}
		select {
		case sub.events <- evt:
		default:
			select {
			case <-sub.events:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.events <- evt:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}

// fault drops the channel to Faulted and delivers the terminal signal to
// every subscriber. A read error after a deliberate Disconnect is ignored.
func (c *EventChannel) fault(cause error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Faulted
	conn := c.conn
	c.conn = nil
	c.closeSubsLocked(fmt.Errorf("%w: %v", wcferrors.ErrChannelFault, cause))
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.log.ErrorWithErr("event channel faulted", cause)
}

// closeSubsLocked ends every subscription with the given terminal cause.
// Caller holds mu.
func (c *EventChannel) closeSubsLocked(cause error) {
	for id, sub := range c.subs {
		sub.close(cause)
		delete(c.subs, id)
	}
}
