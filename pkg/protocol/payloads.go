package protocol

import (
	"fmt"

	"wcferry/pkg/codec"
)

// Request payloads. Each Encode produces the schema-encoded argument block
// for one peer function; field order is part of the pinned wire contract.

// TextMessage is the argument block for OpSendText. Mentions is a comma
// separated wxid list for group @-mentions, or "notify@all".
type TextMessage struct {
	Receiver string
	Content  string
	Mentions string
}

func (m *TextMessage) Encode() []byte {
	return codec.NewWriter().String(m.Receiver).String(m.Content).String(m.Mentions).Bytes()
}

// PathMessage is the argument block for the file-based send functions
// (OpSendImage, OpSendFile, OpSendEmotion) and OpDownloadAttachment thumbs.
type PathMessage struct {
	Receiver string
	Path     string
}

func (m *PathMessage) Encode() []byte {
	return codec.NewWriter().String(m.Receiver).String(m.Path).Bytes()
}

// XMLMessage is the argument block for OpSendXML.
type XMLMessage struct {
	Receiver string
	Content  string
	Path     string
	Kind     int32
}

func (m *XMLMessage) Encode() []byte {
	return codec.NewWriter().String(m.Receiver).String(m.Content).String(m.Path).Int32(m.Kind).Bytes()
}

// DBQuery is the argument block for OpExecDBQuery.
type DBQuery struct {
	DB  string
	SQL string
}

func (m *DBQuery) Encode() []byte {
	return codec.NewWriter().String(m.DB).String(m.SQL).Bytes()
}

// Verification is the argument block for OpAcceptFriend.
type Verification struct {
	V3    string
	V4    string
	Scene int32
}

func (m *Verification) Encode() []byte {
	return codec.NewWriter().String(m.V3).String(m.V4).Int32(m.Scene).Bytes()
}

// MemberChange is the argument block for the room membership functions.
// Wxids is a comma separated list.
type MemberChange struct {
	RoomID string
	Wxids  string
}

func (m *MemberChange) Encode() []byte {
	return codec.NewWriter().String(m.RoomID).String(m.Wxids).Bytes()
}

// Transfer is the argument block for OpReceiveTransfer.
type Transfer struct {
	Wxid          string
	TransferID    string
	TransactionID string
}

func (m *Transfer) Encode() []byte {
	return codec.NewWriter().String(m.Wxid).String(m.TransferID).String(m.TransactionID).Bytes()
}

// AttachmentRequest is the argument block for OpDownloadAttachment.
type AttachmentRequest struct {
	ID    uint64
	Thumb string
	Extra string
}

func (m *AttachmentRequest) Encode() []byte {
	return codec.NewWriter().Uint64(m.ID).String(m.Thumb).String(m.Extra).Bytes()
}

// ForwardRequest is the argument block for OpForwardMsg.
type ForwardRequest struct {
	ID       uint64
	Receiver string
}

func (m *ForwardRequest) Encode() []byte {
	return codec.NewWriter().Uint64(m.ID).String(m.Receiver).Bytes()
}

// PatMessage is the argument block for OpSendPat.
type PatMessage struct {
	RoomID string
	Wxid   string
}

func (m *PatMessage) Encode() []byte {
	return codec.NewWriter().String(m.RoomID).String(m.Wxid).Bytes()
}

// DecryptRequest is the argument block for OpDecryptImage.
type DecryptRequest struct {
	Src string
	Dst string
}

func (m *DecryptRequest) Encode() []byte {
	return codec.NewWriter().String(m.Src).String(m.Dst).Bytes()
}

// MomentsRequest is the argument block for OpRefreshMoments.
type MomentsRequest struct {
	ID uint64
}

func (m *MomentsRequest) Encode() []byte {
	return codec.NewWriter().Uint64(m.ID).Bytes()
}

// FlagRequest is the argument block for OpEnableReceiving.
type FlagRequest struct {
	Flag bool
}

func (m *FlagRequest) Encode() []byte {
	return codec.NewWriter().Bool(m.Flag).Bytes()
}

// StringValue is the argument block for functions taking one string, such
// as OpGetDBTables.
type StringValue struct {
	Value string
}

func (m *StringValue) Encode() []byte {
	return codec.NewWriter().String(m.Value).Bytes()
}

// DecodeStringValue parses a single-string result payload, such as the
// OpGetSelfWxid or OpDecryptImage result.
func DecodeStringValue(b []byte) (string, error) {
	r := codec.NewReader(b)
	v := r.String()
	if err := r.Err(); err != nil {
		return "", fmt.Errorf("string value: %w", err)
	}
	return v, nil
}

// RichTextMessage is the argument block for OpSendRichText, a link card
// with title, digest and thumbnail.
type RichTextMessage struct {
	Receiver string
	Name     string
	Account  string
	Title    string
	Digest   string
	URL      string
	ThumbURL string
}

func (m *RichTextMessage) Encode() []byte {
	w := codec.NewWriter()
	w.String(m.Receiver).String(m.Name).String(m.Account)
	w.String(m.Title).String(m.Digest).String(m.URL).String(m.ThumbURL)
	return w.Bytes()
}

// Result payloads.

// UserInfo is the result of OpGetUserInfo.
type UserInfo struct {
	Wxid   string
	Name   string
	Mobile string
	Home   string
}

func (m *UserInfo) Encode() []byte {
	return codec.NewWriter().String(m.Wxid).String(m.Name).String(m.Mobile).String(m.Home).Bytes()
}

func DecodeUserInfo(b []byte) (*UserInfo, error) {
	r := codec.NewReader(b)
	info := &UserInfo{
		Wxid:   r.String(),
		Name:   r.String(),
		Mobile: r.String(),
		Home:   r.String(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}
	return info, nil
}

// Contact is one entry in the result of OpGetContacts.
type Contact struct {
	Wxid     string
	Code     string
	Remark   string
	Name     string
	Country  string
	Province string
	City     string
	Gender   int32
}

func (m *Contact) encodeTo(w *codec.Writer) {
	w.String(m.Wxid).String(m.Code).String(m.Remark).String(m.Name)
	w.String(m.Country).String(m.Province).String(m.City).Int32(m.Gender)
}

func decodeContact(r *codec.Reader) Contact {
	return Contact{
		Wxid:     r.String(),
		Code:     r.String(),
		Remark:   r.String(),
		Name:     r.String(),
		Country:  r.String(),
		Province: r.String(),
		City:     r.String(),
		Gender:   r.Int32(),
	}
}

// ContactList is the result of OpGetContacts.
type ContactList struct {
	Contacts []Contact
}

func (m *ContactList) Encode() []byte {
	w := codec.NewWriter()
	w.Count(len(m.Contacts))
	for i := range m.Contacts {
		m.Contacts[i].encodeTo(w)
	}
	return w.Bytes()
}

func DecodeContactList(b []byte) (*ContactList, error) {
	r := codec.NewReader(b)
	n := r.Count()
	list := &ContactList{}
	for i := 0; i < n && r.Err() == nil; i++ {
		list.Contacts = append(list.Contacts, decodeContact(r))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("contact list: %w", err)
	}
	return list, nil
}

// StringList is the result of OpGetDBNames and OpGetDBTables.
type StringList struct {
	Values []string
}

func (m *StringList) Encode() []byte {
	w := codec.NewWriter()
	w.Count(len(m.Values))
	for _, v := range m.Values {
		w.String(v)
	}
	return w.Bytes()
}

func DecodeStringList(b []byte) (*StringList, error) {
	r := codec.NewReader(b)
	n := r.Count()
	list := &StringList{}
	for i := 0; i < n && r.Err() == nil; i++ {
		list.Values = append(list.Values, r.String())
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("string list: %w", err)
	}
	return list, nil
}

// MsgTypeTable is the result of OpGetMsgTypes: message type id to label.
// Entries are encoded in map iteration order; the decoder does not depend
// on ordering.
type MsgTypeTable struct {
	Types map[int32]string
}

func (m *MsgTypeTable) Encode() []byte {
	w := codec.NewWriter()
	w.Count(len(m.Types))
	for id, label := range m.Types {
		w.Int32(id)
		w.String(label)
	}
	return w.Bytes()
}

func DecodeMsgTypeTable(b []byte) (*MsgTypeTable, error) {
	r := codec.NewReader(b)
	n := r.Count()
	table := &MsgTypeTable{Types: make(map[int32]string, n)}
	for i := 0; i < n && r.Err() == nil; i++ {
		id := r.Int32()
		table.Types[id] = r.String()
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("msg type table: %w", err)
	}
	return table, nil
}

// DBField is one column value in a database query result row. Content is
// the raw column bytes; Kind is the peer's column type discriminator.
type DBField struct {
	Column  string
	Kind    int32
	Content []byte
}

// DBRow is one result row of OpExecDBQuery.
type DBRow struct {
	Fields []DBField
}

// DBRowSet is the result of OpExecDBQuery.
type DBRowSet struct {
	Rows []DBRow
}

func (m *DBRowSet) Encode() []byte {
	w := codec.NewWriter()
	w.Count(len(m.Rows))
	for _, row := range m.Rows {
		w.Count(len(row.Fields))
		for _, f := range row.Fields {
			w.String(f.Column)
			w.Int32(f.Kind)
			w.Bytes32(f.Content)
		}
	}
	return w.Bytes()
}

func DecodeDBRowSet(b []byte) (*DBRowSet, error) {
	r := codec.NewReader(b)
	rows := r.Count()
	set := &DBRowSet{}
	for i := 0; i < rows && r.Err() == nil; i++ {
		fields := r.Count()
		row := DBRow{}
		for j := 0; j < fields && r.Err() == nil; j++ {
			row.Fields = append(row.Fields, DBField{
				Column:  r.String(),
				Kind:    r.Int32(),
				Content: r.Bytes32(),
			})
		}
		set.Rows = append(set.Rows, row)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("db row set: %w", err)
	}
	return set, nil
}
