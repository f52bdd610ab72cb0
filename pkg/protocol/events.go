package protocol

import (
	"fmt"

	"wcferry/pkg/codec"
)

// ChatMessage is the payload of an EventChatMessage notification: one
// incoming message as recorded by the peer.
type ChatMessage struct {
	ID        uint64
	Kind      uint32
	IsSelf    bool
	IsGroup   bool
	Timestamp uint32
	RoomID    string
	Sender    string
	Content   string
	Sign      string
	Thumb     string
	Extra     string
	XML       string
}

func (m *ChatMessage) Encode() []byte {
	w := codec.NewWriter()
	w.Uint64(m.ID).Uint32(m.Kind).Bool(m.IsSelf).Bool(m.IsGroup).Uint32(m.Timestamp)
	w.String(m.RoomID).String(m.Sender).String(m.Content)
	w.String(m.Sign).String(m.Thumb).String(m.Extra).String(m.XML)
	return w.Bytes()
}

func DecodeChatMessage(b []byte) (*ChatMessage, error) {
	r := codec.NewReader(b)
	msg := &ChatMessage{
		ID:        r.Uint64(),
		Kind:      r.Uint32(),
		IsSelf:    r.Bool(),
		IsGroup:   r.Bool(),
		Timestamp: r.Uint32(),
		RoomID:    r.String(),
		Sender:    r.String(),
		Content:   r.String(),
		Sign:      r.String(),
		Thumb:     r.String(),
		Extra:     r.String(),
		XML:       r.String(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("chat message: %w", err)
	}
	return msg, nil
}

// StatusChange is the payload of an EventStatusChange notification.
type StatusChange struct {
	Code   int32
	Detail string
}

func (m *StatusChange) Encode() []byte {
	return codec.NewWriter().Int32(m.Code).String(m.Detail).Bytes()
}

func DecodeStatusChange(b []byte) (*StatusChange, error) {
	r := codec.NewReader(b)
	sc := &StatusChange{Code: r.Int32(), Detail: r.String()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("status change: %w", err)
	}
	return sc, nil
}
