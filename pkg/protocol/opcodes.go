package protocol

// Opcode identifies a peer function on the command channel. The values
// mirror the peer module's published function table and must not be
// renumbered.
type Opcode uint16

const (
	OpPing        Opcode = 0x00
	OpIsLogin     Opcode = 0x01
	OpGetSelfWxid Opcode = 0x10
	OpGetMsgTypes Opcode = 0x11
	OpGetContacts Opcode = 0x12
	OpGetDBNames  Opcode = 0x13
	OpGetDBTables Opcode = 0x14
	OpGetUserInfo Opcode = 0x15

	OpSendText     Opcode = 0x20
	OpSendImage    Opcode = 0x21
	OpSendFile     Opcode = 0x22
	OpSendXML      Opcode = 0x23
	OpSendEmotion  Opcode = 0x24
	OpSendRichText Opcode = 0x25
	OpSendPat      Opcode = 0x26
	OpForwardMsg   Opcode = 0x27

	OpEnableReceiving  Opcode = 0x30
	OpDisableReceiving Opcode = 0x40

	OpExecDBQuery        Opcode = 0x50
	OpAcceptFriend       Opcode = 0x51
	OpReceiveTransfer    Opcode = 0x52
	OpRefreshMoments     Opcode = 0x53
	OpDownloadAttachment Opcode = 0x54

	OpDecryptImage Opcode = 0x60

	OpAddRoomMembers    Opcode = 0x70
	OpDelRoomMembers    Opcode = 0x71
	OpInviteRoomMembers Opcode = 0x72
)

// OpcodeNames maps opcodes to human-readable names for logging and
// diagnostics.
var OpcodeNames = map[Opcode]string{
	OpPing:               "PING",
	OpIsLogin:            "IS_LOGIN",
	OpGetSelfWxid:        "GET_SELF_WXID",
	OpGetMsgTypes:        "GET_MSG_TYPES",
	OpGetContacts:        "GET_CONTACTS",
	OpGetDBNames:         "GET_DB_NAMES",
	OpGetDBTables:        "GET_DB_TABLES",
	OpGetUserInfo:        "GET_USER_INFO",
	OpSendText:           "SEND_TEXT",
	OpSendImage:          "SEND_IMAGE",
	OpSendFile:           "SEND_FILE",
	OpSendXML:            "SEND_XML",
	OpSendEmotion:        "SEND_EMOTION",
	OpSendRichText:       "SEND_RICH_TEXT",
	OpSendPat:            "SEND_PAT",
	OpForwardMsg:         "FORWARD_MSG",
	OpEnableReceiving:    "ENABLE_RECEIVING",
	OpDisableReceiving:   "DISABLE_RECEIVING",
	OpExecDBQuery:        "EXEC_DB_QUERY",
	OpAcceptFriend:       "ACCEPT_FRIEND",
	OpReceiveTransfer:    "RECEIVE_TRANSFER",
	OpRefreshMoments:     "REFRESH_MOMENTS",
	OpDownloadAttachment: "DOWNLOAD_ATTACHMENT",
	OpDecryptImage:       "DECRYPT_IMAGE",
	OpAddRoomMembers:     "ADD_ROOM_MEMBERS",
	OpDelRoomMembers:     "DEL_ROOM_MEMBERS",
	OpInviteRoomMembers:  "INVITE_ROOM_MEMBERS",
}

// Name returns the symbolic opcode name, or "UNKNOWN" for values outside
// the table.
func (op Opcode) Name() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// EventKind identifies an unsolicited notification on the event channel.
type EventKind uint16

const (
	// EventChatMessage carries an incoming chat message.
	EventChatMessage EventKind = 0x01
	// EventStatusChange carries a peer-side status notification, such as
	// login or logout of the controlled account.
	EventStatusChange EventKind = 0x02
)

// EventKindNames maps event kinds to human-readable names.
var EventKindNames = map[EventKind]string{
	EventChatMessage:  "CHAT_MESSAGE",
	EventStatusChange: "STATUS_CHANGE",
}

// Name returns the symbolic event kind name, or "UNKNOWN".
func (k EventKind) Name() string {
	if name, ok := EventKindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}
