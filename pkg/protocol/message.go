package protocol

import (
	"fmt"

	"wcferry/pkg/codec"
	wcferrors "wcferry/pkg/errors"
)

// StatusOK is the peer's success status for boolean operations.
const StatusOK int32 = 1

// Command is a typed request to the peer. Seq is the correlation identifier;
// the command channel assigns one when the caller leaves it zero. A command
// is never mutated after it has been sent.
type Command struct {
	Opcode  Opcode
	Seq     uint32
	Payload []byte
}

// NewCommand creates a command for the given opcode. The payload may be nil
// for argument-free functions.
func NewCommand(op Opcode, payload []byte) *Command {
	return &Command{Opcode: op, Payload: payload}
}

// EncodeBody serializes the correlation identifier and payload into the
// frame body carried after the opcode tag.
func (c *Command) EncodeBody() []byte {
	w := codec.NewWriter()
	w.Uint32(c.Seq)
	body := w.Bytes()
	return append(body, c.Payload...)
}

// Response is the peer's reply to exactly one command. Status follows the
// peer convention: StatusOK for boolean success, otherwise an operation
// specific value. Payload holds the schema-encoded result, if any.
type Response struct {
	Opcode  Opcode
	Seq     uint32
	Status  int32
	Payload []byte
}

// DecodeResponse parses a command-channel frame body into a response.
func DecodeResponse(tag uint16, body []byte) (*Response, error) {
	r := codec.NewReader(body)
	seq := r.Uint32()
	status := r.Int32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("response header: %w", err)
	}
	payload := body[8:]
	return &Response{Opcode: Opcode(tag), Seq: seq, Status: status, Payload: payload}, nil
}

// EncodeBody serializes the response for the wire. Used by test peers; the
// production peer is the injected module.
func (r *Response) EncodeBody() []byte {
	w := codec.NewWriter()
	w.Uint32(r.Seq).Int32(r.Status)
	body := w.Bytes()
	return append(body, r.Payload...)
}

// Ok reports whether the peer flagged the operation as successful.
func (r *Response) Ok() bool {
	return r.Status == StatusOK
}

// Event is an unsolicited notification from the peer. Events carry no
// correlation identifier; they are fanned out to every matching subscriber.
type Event struct {
	Kind    EventKind
	Payload []byte
}

// ChatMessage decodes the event payload as an incoming chat message. It
// fails with ErrUnexpectedResult when the event is of a different kind.
func (e *Event) ChatMessage() (*ChatMessage, error) {
	if e.Kind != EventChatMessage {
		return nil, fmt.Errorf("%w: event kind %s is not a chat message", wcferrors.ErrUnexpectedResult, e.Kind.Name())
	}
	return DecodeChatMessage(e.Payload)
}
