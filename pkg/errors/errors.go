package errors

import "errors"

// Injection errors
var (
	// ErrInjectionFailed is returned when the target process cannot be found,
	// the module cannot be loaded into it, or the peer never signals ready.
	ErrInjectionFailed = errors.New("injection failed")

	// ErrNotInjected is returned when a channel operation requires an
	// injected peer but the handle is not in the Injected state.
	ErrNotInjected = errors.New("peer not injected")
)

// Channel errors
var (
	// ErrConnectFailed is returned when the transport-level handshake with
	// the peer fails.
	ErrConnectFailed = errors.New("connect failed")

	// ErrNotConnected is returned when sending on a channel that is not in
	// the Connected state.
	ErrNotConnected = errors.New("channel not connected")

	// ErrAlreadyConnected is returned when connecting a channel that is
	// already connected.
	ErrAlreadyConnected = errors.New("channel already connected")

	// ErrTimeout is returned when no matching response arrives within the
	// caller's budget. The channel itself stays healthy.
	ErrTimeout = errors.New("command timed out")

	// ErrChannelFault is returned when an I/O error or malformed frame
	// poisons a channel mid-session. A fresh connect is required.
	ErrChannelFault = errors.New("channel fault")
)

// Protocol errors
var (
	// ErrFormat is returned when a frame or payload cannot be decoded
	// against the peer's wire schema.
	ErrFormat = errors.New("malformed frame")

	// ErrUnexpectedResult is returned when a decoded response does not
	// match the shape the issued opcode expects.
	ErrUnexpectedResult = errors.New("unexpected result shape")
)

// Lifecycle errors
var (
	// ErrClosed is returned when operating on a client that has been closed.
	ErrClosed = errors.New("client closed")
)
