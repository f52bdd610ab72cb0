package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	wcferrors "wcferry/pkg/errors"
)

// TestOpcodeNames tests the opcode name table
func TestOpcodeNames(t *testing.T) {
	if got := OpSendText.Name(); got != "SEND_TEXT" {
		t.Errorf("OpSendText.Name() = %q", got)
	}
	if got := OpPing.Name(); got != "PING" {
		t.Errorf("OpPing.Name() = %q", got)
	}
	if got := Opcode(0xfffe).Name(); got != "UNKNOWN" {
		t.Errorf("unknown opcode name = %q", got)
	}
}

// TestCommandBodyRoundTrip tests command body encode / response decode pairing
func TestCommandBodyRoundTrip(t *testing.T) {
	cmd := NewCommand(OpSendText, (&TextMessage{Receiver: "wxid_1", Content: "hi", Mentions: ""}).Encode())
	cmd.Seq = 42
	body := cmd.EncodeBody()

	// A command body opens with its correlation identifier.
	if body[0] != 42 || body[1] != 0 || body[2] != 0 || body[3] != 0 {
		t.Errorf("body does not open with little-endian seq 42: % x", body[:4])
	}
}

// TestResponseRoundTrip tests response encode/decode
func TestResponseRoundTrip(t *testing.T) {
	in := &Response{Opcode: OpIsLogin, Seq: 7, Status: StatusOK, Payload: []byte{0xaa}}
	out, err := DecodeResponse(uint16(OpIsLogin), in.EncodeBody())
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if out.Seq != 7 || out.Status != StatusOK || out.Opcode != OpIsLogin {
		t.Errorf("decoded response = %+v", out)
	}
	if !bytes.Equal(out.Payload, []byte{0xaa}) {
		t.Errorf("payload = % x", out.Payload)
	}
	if !out.Ok() {
		t.Error("Ok() = false for StatusOK")
	}
}

// TestDecodeResponseTruncated tests header truncation handling
func TestDecodeResponseTruncated(t *testing.T) {
	_, err := DecodeResponse(uint16(OpPing), []byte{1, 2, 3})
	if !errors.Is(err, wcferrors.ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

// TestUserInfoRoundTrip tests user info payload fidelity
func TestUserInfoRoundTrip(t *testing.T) {
	in := &UserInfo{Wxid: "wxid_self", Name: "Alice", Mobile: "13800000000", Home: "C:\\WeChat Files"}
	out, err := DecodeUserInfo(in.Encode())
	if err != nil {
		t.Fatalf("DecodeUserInfo failed: %v", err)
	}
	if *out != *in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

// TestContactListRoundTrip tests contact list payload fidelity
func TestContactListRoundTrip(t *testing.T) {
	in := &ContactList{Contacts: []Contact{
		{Wxid: "wxid_a", Name: "A", Gender: 1},
		{Wxid: "wxid_b", Code: "b-code", Remark: "colleague", Country: "CN", Province: "GD", City: "SZ", Gender: 2},
	}}
	out, err := DecodeContactList(in.Encode())
	if err != nil {
		t.Fatalf("DecodeContactList failed: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

// TestStringListRoundTrip tests db name list fidelity
func TestStringListRoundTrip(t *testing.T) {
	in := &StringList{Values: []string{"MicroMsg.db", "MSG0.db"}}
	out, err := DecodeStringList(in.Encode())
	if err != nil {
		t.Fatalf("DecodeStringList failed: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestStringValueRoundTrip(t *testing.T) {
	in := &StringValue{Value: "wxid_self"}
	out, err := DecodeStringValue(in.Encode())
	if err != nil {
		t.Fatalf("DecodeStringValue failed: %v", err)
	}
	if out != in.Value {
		t.Errorf("round trip mismatch: %q", out)
	}

	if _, err := DecodeStringValue([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("truncated string value did not fail")
	}
}

// TestMsgTypeTableRoundTrip tests the message type map
func TestMsgTypeTableRoundTrip(t *testing.T) {
	in := &MsgTypeTable{Types: map[int32]string{1: "text", 3: "image", 34: "voice", 10002: "revoke"}}
	out, err := DecodeMsgTypeTable(in.Encode())
	if err != nil {
		t.Fatalf("DecodeMsgTypeTable failed: %v", err)
	}
	if !reflect.DeepEqual(out.Types, in.Types) {
		t.Errorf("round trip mismatch: %+v", out.Types)
	}
}

// TestDBRowSetRoundTrip tests db query result fidelity including blobs
func TestDBRowSetRoundTrip(t *testing.T) {
	in := &DBRowSet{Rows: []DBRow{
		{Fields: []DBField{
			{Column: "UserName", Kind: 3, Content: []byte("wxid_x")},
			{Column: "RoomData", Kind: 4, Content: []byte{0x00, 0x01, 0xff}},
		}},
		{Fields: []DBField{
			{Column: "UserName", Kind: 3, Content: []byte("wxid_y")},
		}},
	}}
	out, err := DecodeDBRowSet(in.Encode())
	if err != nil {
		t.Fatalf("DecodeDBRowSet failed: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

// TestChatMessageRoundTrip tests the incoming message event payload
func TestChatMessageRoundTrip(t *testing.T) {
	in := &ChatMessage{
		ID:        981273,
		Kind:      1,
		IsGroup:   true,
		Timestamp: 1724900000,
		RoomID:    "123456@chatroom",
		Sender:    "wxid_sender",
		Content:   "Are you ok?",
		XML:       "<msgsource/>",
	}
	out, err := DecodeChatMessage(in.Encode())
	if err != nil {
		t.Fatalf("DecodeChatMessage failed: %v", err)
	}
	if *out != *in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

// TestEventChatMessageKindGuard tests kind mismatch detection
func TestEventChatMessageKindGuard(t *testing.T) {
	evt := &Event{Kind: EventStatusChange, Payload: (&StatusChange{Code: 1}).Encode()}
	_, err := evt.ChatMessage()
	if !errors.Is(err, wcferrors.ErrUnexpectedResult) {
		t.Errorf("err = %v, want ErrUnexpectedResult", err)
	}

	evt = &Event{Kind: EventChatMessage, Payload: (&ChatMessage{ID: 5, Content: "hey"}).Encode()}
	msg, err := evt.ChatMessage()
	if err != nil {
		t.Fatalf("ChatMessage failed: %v", err)
	}
	if msg.ID != 5 || msg.Content != "hey" {
		t.Errorf("decoded message = %+v", msg)
	}
}
