package client

import (
	"context"
	"fmt"
	"strings"

	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/protocol"
)

// Thin wrappers over the peer's published functions. Each sends one
// command and decodes the reply; transport and correlation failures pass
// through from the command channel, shape mismatches come back as
// ErrUnexpectedResult.

// Ping verifies the command round trip.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, protocol.OpPing, nil)
	return err
}

// IsLoggedIn reports whether the controlled account is logged in.
func (c *Client) IsLoggedIn(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, protocol.OpIsLogin, nil)
	if err != nil {
		return false, err
	}
	return resp.Ok(), nil
}

// SelfWxid returns the controlled account's own wxid.
func (c *Client) SelfWxid(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, protocol.OpGetSelfWxid, nil)
	if err != nil {
		return "", err
	}
	wxid, err := protocol.DecodeStringValue(resp.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return wxid, nil
}

// GetUserInfo returns the controlled account's profile.
func (c *Client) GetUserInfo(ctx context.Context) (*protocol.UserInfo, error) {
	resp, err := c.call(ctx, protocol.OpGetUserInfo, nil)
	if err != nil {
		return nil, err
	}
	info, err := protocol.DecodeUserInfo(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return info, nil
}

// GetContacts returns the full contact list, chat rooms included.
func (c *Client) GetContacts(ctx context.Context) ([]protocol.Contact, error) {
	resp, err := c.call(ctx, protocol.OpGetContacts, nil)
	if err != nil {
		return nil, err
	}
	list, err := protocol.DecodeContactList(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return list.Contacts, nil
}

// GetMsgTypes returns the peer's message type id to label table.
func (c *Client) GetMsgTypes(ctx context.Context) (map[int32]string, error) {
	resp, err := c.call(ctx, protocol.OpGetMsgTypes, nil)
	if err != nil {
		return nil, err
	}
	table, err := protocol.DecodeMsgTypeTable(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return table.Types, nil
}

// DBNames lists the application's database files.
func (c *Client) DBNames(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, protocol.OpGetDBNames, nil)
	if err != nil {
		return nil, err
	}
	list, err := protocol.DecodeStringList(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return list.Values, nil
}

// DBTables lists the tables of one application database.
func (c *Client) DBTables(ctx context.Context, db string) ([]string, error) {
	resp, err := c.call(ctx, protocol.OpGetDBTables, &protocol.StringValue{Value: db})
	if err != nil {
		return nil, err
	}
	list, err := protocol.DecodeStringList(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return list.Values, nil
}

// ExecDBQuery runs a read query against one application database and
// returns the raw row set.
func (c *Client) ExecDBQuery(ctx context.Context, db, sql string) (*protocol.DBRowSet, error) {
	resp, err := c.call(ctx, protocol.OpExecDBQuery, &protocol.DBQuery{DB: db, SQL: sql})
	if err != nil {
		return nil, err
	}
	set, err := protocol.DecodeDBRowSet(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return set, nil
}

// SendText sends a text message. mentions lists wxids to @-mention in a
// group chat; pass nil for none.
func (c *Client) SendText(ctx context.Context, receiver, content string, mentions []string) error {
	return c.callOk(ctx, protocol.OpSendText, &protocol.TextMessage{
		Receiver: receiver,
		Content:  content,
		Mentions: strings.Join(mentions, ","),
	})
}

// SendImage sends an image file by path.
func (c *Client) SendImage(ctx context.Context, receiver, path string) error {
	return c.callOk(ctx, protocol.OpSendImage, &protocol.PathMessage{Receiver: receiver, Path: path})
}

// SendFile sends an arbitrary file by path.
func (c *Client) SendFile(ctx context.Context, receiver, path string) error {
	return c.callOk(ctx, protocol.OpSendFile, &protocol.PathMessage{Receiver: receiver, Path: path})
}

// SendEmotion sends an emotion (sticker) file by path.
func (c *Client) SendEmotion(ctx context.Context, receiver, path string) error {
	return c.callOk(ctx, protocol.OpSendEmotion, &protocol.PathMessage{Receiver: receiver, Path: path})
}

// SendXML sends a raw XML message.
func (c *Client) SendXML(ctx context.Context, msg *protocol.XMLMessage) error {
	return c.callOk(ctx, protocol.OpSendXML, msg)
}

// SendRichText sends a link card message.
func (c *Client) SendRichText(ctx context.Context, msg *protocol.RichTextMessage) error {
	return c.callOk(ctx, protocol.OpSendRichText, msg)
}

// SendPat nudges a chat room member.
func (c *Client) SendPat(ctx context.Context, roomID, wxid string) error {
	return c.callOk(ctx, protocol.OpSendPat, &protocol.PatMessage{RoomID: roomID, Wxid: wxid})
}

// ForwardMessage forwards an earlier message by id to another receiver.
func (c *Client) ForwardMessage(ctx context.Context, id uint64, receiver string) error {
	return c.callOk(ctx, protocol.OpForwardMsg, &protocol.ForwardRequest{ID: id, Receiver: receiver})
}

// AcceptFriend accepts a friend request identified by its v3/v4 tokens.
func (c *Client) AcceptFriend(ctx context.Context, v3, v4 string, scene int32) error {
	return c.callOk(ctx, protocol.OpAcceptFriend, &protocol.Verification{V3: v3, V4: v4, Scene: scene})
}

// AddRoomMembers adds members to a chat room.
func (c *Client) AddRoomMembers(ctx context.Context, roomID string, wxids []string) error {
	return c.callOk(ctx, protocol.OpAddRoomMembers, &protocol.MemberChange{
		RoomID: roomID,
		Wxids:  strings.Join(wxids, ","),
	})
}

// DelRoomMembers removes members from a chat room.
func (c *Client) DelRoomMembers(ctx context.Context, roomID string, wxids []string) error {
	return c.callOk(ctx, protocol.OpDelRoomMembers, &protocol.MemberChange{
		RoomID: roomID,
		Wxids:  strings.Join(wxids, ","),
	})
}

// InviteRoomMembers invites members into a large chat room, which requires
// an invitation instead of a direct add.
func (c *Client) InviteRoomMembers(ctx context.Context, roomID string, wxids []string) error {
	return c.callOk(ctx, protocol.OpInviteRoomMembers, &protocol.MemberChange{
		RoomID: roomID,
		Wxids:  strings.Join(wxids, ","),
	})
}

// ReceiveTransfer accepts an incoming money transfer.
func (c *Client) ReceiveTransfer(ctx context.Context, wxid, transferID, transactionID string) error {
	return c.callOk(ctx, protocol.OpReceiveTransfer, &protocol.Transfer{
		Wxid:          wxid,
		TransferID:    transferID,
		TransactionID: transactionID,
	})
}

// RefreshMoments asks the peer to refresh the moments feed starting at the
// given id; zero means from the top.
func (c *Client) RefreshMoments(ctx context.Context, id uint64) error {
	return c.callOk(ctx, protocol.OpRefreshMoments, &protocol.MomentsRequest{ID: id})
}

// DownloadAttachment asks the peer to download the media of a message.
func (c *Client) DownloadAttachment(ctx context.Context, id uint64, thumb, extra string) error {
	return c.callOk(ctx, protocol.OpDownloadAttachment, &protocol.AttachmentRequest{
		ID:    id,
		Thumb: thumb,
		Extra: extra,
	})
}

// DecryptImage decrypts an image file downloaded by the application and
// returns the path of the decrypted copy.
func (c *Client) DecryptImage(ctx context.Context, src, dst string) (string, error) {
	resp, err := c.call(ctx, protocol.OpDecryptImage, &protocol.DecryptRequest{Src: src, Dst: dst})
	if err != nil {
		return "", err
	}
	if !resp.Ok() {
		return "", fmt.Errorf("%w: decrypt returned status %d", wcferrors.ErrUnexpectedResult, resp.Status)
	}
	path, err := protocol.DecodeStringValue(resp.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wcferrors.ErrUnexpectedResult, err)
	}
	return path, nil
}
