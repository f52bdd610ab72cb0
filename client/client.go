// Package client is the high-level wcferry facade. It ties the injector,
// the command channel and the event channel together behind one handle:
//
//	cfg := config.DefaultConfig()
//	c := client.New(cfg)
//	if err := c.Open(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	c.SendText(ctx, "wxid_friend", "hello", nil)
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wcferry/pkg/channel"
	"wcferry/pkg/config"
	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/injector"
	"wcferry/pkg/logger"
	"wcferry/pkg/protocol"
	"wcferry/pkg/storage"
)

// Injection is the injector surface the client depends on. Satisfied by
// *injector.Injector; tests substitute a fake.
type Injection interface {
	Inject(ctx context.Context) (*injector.PeerHandle, error)
	Attach(ctx context.Context) (*injector.PeerHandle, error)
	Detach(handle *injector.PeerHandle) error
	IsAlive(handle *injector.PeerHandle) bool
}

// Client controls one injected peer through its two channels. All methods
// are safe for concurrent use. The zero value is not usable; use New.
type Client struct {
	cfg    *config.ClientConfig
	inj    Injection
	cmd    *channel.CommandChannel
	events *channel.EventChannel

	history     storage.Store
	sendTimeout time.Duration
	attach      bool
	log         *logger.Logger

	// lifecycle serializes Open and Close end to end, so a concurrent Open
	// cannot inject a second time and a concurrent Close cannot detach a
	// peer another Open is still bringing up. mu guards the fields below
	// for the short reads the other methods need.
	lifecycle sync.Mutex

	mu     sync.Mutex
	handle *injector.PeerHandle
	opened bool
	closed bool
}

// Option customizes a Client at construction time.
type Option func(*options)

type options struct {
	dialer  channel.Dialer
	inj     Injection
	history storage.Store
	attach  bool
}

// WithDialer replaces the transport dialer. Used by tests to point the
// channels at an in-process peer.
func WithDialer(d channel.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithInjection replaces the injector.
func WithInjection(inj Injection) Option {
	return func(o *options) { o.inj = inj }
}

// WithHistory installs a message history store. The client persists every
// incoming chat message to it and closes it on Close.
func WithHistory(store storage.Store) Option {
	return func(o *options) { o.history = store }
}

// WithAttach makes Open bind to an already-injected peer instead of
// performing a fresh injection. Close will then leave the module loaded.
func WithAttach() Option {
	return func(o *options) { o.attach = true }
}

// New creates a client for the given configuration. A nil cfg means
// defaults. The client holds no resources until Open.
func New(cfg *config.ClientConfig, opts ...Option) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.dialer == nil {
		o.dialer = &channel.TCPDialer{
			Timeout: time.Duration(cfg.Timeouts.ConnectSeconds) * time.Second,
		}
	}
	if o.inj == nil {
		o.inj = injector.New(injector.Options{
			ProcessName:  cfg.Injection.ProcessName,
			ModulePath:   cfg.Injection.ModulePath,
			CommandPort:  cfg.CommandPort,
			ReadyTimeout: time.Duration(cfg.Timeouts.ReadySeconds) * time.Second,
		})
	}

	cmdAddr := fmt.Sprintf("127.0.0.1:%d", cfg.CommandPort)
	evtAddr := fmt.Sprintf("127.0.0.1:%d", cfg.ResolvedEventPort())

	return &Client{
		cfg:         cfg,
		inj:         o.inj,
		cmd:         channel.NewCommandChannel(o.dialer, cmdAddr),
		events:      channel.NewEventChannel(o.dialer, evtAddr, cfg.Queue.SubscriberBuffer),
		history:     o.history,
		sendTimeout: time.Duration(cfg.Timeouts.SendSeconds) * time.Second,
		attach:      o.attach,
		log:         logger.Get().With("component", "client"),
	}
}

// Open brings the client up: inject the module (or attach to an existing
// one), connect the command channel, ask the peer to start forwarding
// messages, then connect the event channel. On any failure the steps
// already taken are undone and the client stays closed, so Open may be
// retried.
func (c *Client) Open(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wcferrors.ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return wcferrors.ErrAlreadyConnected
	}
	c.mu.Unlock()

	var (
		handle *injector.PeerHandle
		err    error
	)
	if c.attach {
		handle, err = c.inj.Attach(ctx)
	} else {
		handle, err = c.inj.Inject(ctx)
	}
	if err != nil {
		return err
	}

	if err := c.cmd.Connect(ctx, handle); err != nil {
		c.inj.Detach(handle)
		return err
	}

	if err := c.setReceiving(ctx, true); err != nil {
		c.cmd.Disconnect()
		c.inj.Detach(handle)
		return fmt.Errorf("enable receiving: %w", err)
	}

	if err := c.events.Connect(ctx, handle); err != nil {
		c.setReceiving(ctx, false)
		c.cmd.Disconnect()
		c.inj.Detach(handle)
		return err
	}

	c.mu.Lock()
	c.handle = handle
	c.opened = true
	c.mu.Unlock()

	if c.history != nil {
		go c.persistLoop(c.events.Subscribe(func(e *protocol.Event) bool {
			return e.Kind == protocol.EventChatMessage
		}))
	}

	c.log.InfoWith("client opened", "pid", handle.PID, "command_port", c.cfg.CommandPort)
	return nil
}

// Close tears the client down in reverse order of Open. Best effort and
// idempotent: a dead peer does not make Close fail.
func (c *Client) Close() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	opened := c.opened
	handle := c.handle
	c.opened = false
	c.handle = nil
	c.mu.Unlock()

	if opened {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.setReceiving(ctx, false); err != nil {
			c.log.WarnWith("disable receiving on close failed", "error", err)
		}
		cancel()

		c.events.Disconnect()
		c.cmd.Disconnect()
	}

	if handle != nil {
		if err := c.inj.Detach(handle); err != nil {
			c.log.WarnWith("detach on close failed", "error", err)
		}
	}

	if c.history != nil {
		if err := c.history.Close(); err != nil {
			c.log.WarnWith("history close failed", "error", err)
		}
	}

	c.log.InfoWith("client closed")
	return nil
}

// Alive reports whether the injected peer's process still exists.
func (c *Client) Alive() bool {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	return handle != nil && c.inj.IsAlive(handle)
}

// Subscribe registers an event listener; a nil predicate matches every
// event. The caller owns the subscription and should Unsubscribe when done.
func (c *Client) Subscribe(predicate channel.Predicate) *channel.Subscription {
	return c.events.Subscribe(predicate)
}

// Unsubscribe removes a listener registered with Subscribe.
func (c *Client) Unsubscribe(sub *channel.Subscription) {
	c.events.Unsubscribe(sub)
}

// OnChatMessage subscribes to incoming chat messages and calls handler for
// each one on a dedicated goroutine. The goroutine exits when the returned
// subscription ends.
func (c *Client) OnChatMessage(handler func(*protocol.ChatMessage)) *channel.Subscription {
	sub := c.events.Subscribe(func(e *protocol.Event) bool {
		return e.Kind == protocol.EventChatMessage
	})
	go func() {
		for evt := range sub.Events() {
			msg, err := evt.ChatMessage()
			if err != nil {
				c.log.WarnWith("undecodable chat message event", "error", err)
				continue
			}
			handler(msg)
		}
	}()
	return sub
}

// History returns the installed message history store, or nil.
func (c *Client) History() storage.Store {
	return c.history
}

// IssueCommand sends a raw command and returns the peer's response. The
// domain helpers in this package cover the published functions; this is the
// escape hatch for anything beyond them.
func (c *Client) IssueCommand(ctx context.Context, op protocol.Opcode, payload []byte) (*protocol.Response, error) {
	return c.cmd.Send(ctx, protocol.NewCommand(op, payload), c.sendTimeout)
}

// encoder is the argument-block shape shared by the protocol payload types.
type encoder interface {
	Encode() []byte
}

// call sends one command with an optional argument block.
func (c *Client) call(ctx context.Context, op protocol.Opcode, args encoder) (*protocol.Response, error) {
	var payload []byte
	if args != nil {
		payload = args.Encode()
	}
	return c.cmd.Send(ctx, protocol.NewCommand(op, payload), c.sendTimeout)
}

// callOk sends one command and requires a success status in the reply.
func (c *Client) callOk(ctx context.Context, op protocol.Opcode, args encoder) error {
	resp, err := c.call(ctx, op, args)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return fmt.Errorf("%w: %s returned status %d", wcferrors.ErrUnexpectedResult, op.Name(), resp.Status)
	}
	return nil
}

func (c *Client) setReceiving(ctx context.Context, on bool) error {
	op := protocol.OpEnableReceiving
	if !on {
		op = protocol.OpDisableReceiving
	}
	return c.callOk(ctx, op, &protocol.FlagRequest{Flag: on})
}

// persistLoop writes incoming chat messages to the history store until the
// subscription ends.
func (c *Client) persistLoop(sub *channel.Subscription) {
	for evt := range sub.Events() {
		msg, err := evt.ChatMessage()
		if err != nil {
			continue
		}
		if err := c.history.SaveMessage(msg); err != nil {
			c.log.WarnWith("history save failed", "msg_id", msg.ID, "error", err)
		}
	}
}
