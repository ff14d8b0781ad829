package realtime

import (
	"encoding/json"
	"fmt"
)

// CommandKind identifies the internal action a wire event maps onto.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdPublicMessage
	CmdPrivateMessage
	CmdPinMessage
	CmdUnpinMessage
	CmdTyping
	CmdSetLocation
	CmdJoinUserRoom
	CmdJoinPrivateRoom
	CmdGetOnlineUsers
	CmdUserJoined
	CmdHeartbeat
)

// commandKinds is the translation table from wire event names to internal
// commands. Several event names alias the public-send path; they are a
// compatibility fan-in, not separate features.
var commandKinds = map[string]CommandKind{
	"send_message":         CmdPublicMessage,
	"message":              CmdPublicMessage,
	"new_message":          CmdPublicMessage,
	"send_public_message":  CmdPublicMessage,
	"send_private_message": CmdPrivateMessage,
	"private_message":      CmdPrivateMessage,
	"pin_message":          CmdPinMessage,
	"unpin_message":        CmdUnpinMessage,
	"typing":               CmdTyping,
	"user_location":        CmdSetLocation,
	"join_user_room":       CmdJoinUserRoom,
	"join_private_room":    CmdJoinPrivateRoom,
	"get_online_users":     CmdGetOnlineUsers,
	"user_joined":          CmdUserJoined,
	"heartbeat":            CmdHeartbeat,
}

// Command is the canonical form of an inbound client event. The wire payload
// is resolved into it exactly once, at the connection boundary.
type Command struct {
	Kind  CommandKind
	Event string // original wire event name

	Text        string
	RecipientID int64
	MessageID   int64
	ChatType    string
	IsTyping    bool
	Location    string
	User1ID     int64
	User2ID     int64
}

// wireFrame mirrors the superset of inbound payload fields. Clients send flat
// JSON objects: {"type": "<event>", ...}.
type wireFrame struct {
	Type        string          `json:"type"`
	Text        string          `json:"text"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
	RecipientID int64           `json:"recipient_id"`
	MessageID   int64           `json:"message_id"`
	ChatType    string          `json:"chat_type"`
	IsTyping    bool            `json:"is_typing"`
	Location    string          `json:"location"`
	User1ID     int64           `json:"user1_id"`
	User2ID     int64           `json:"user2_id"`
}

// ParseCommand decodes a raw wire frame into a Command, normalizing event
// aliases and payload shape quirks: message text may arrive in "text",
// "message", or as a bare string under "data" (a whole-string payload is
// treated as the message body).
func ParseCommand(raw []byte) (Command, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Command{}, fmt.Errorf("decode event frame: %w", err)
	}
	if f.Type == "" {
		return Command{}, fmt.Errorf("event frame missing type")
	}

	text := f.Text
	if text == "" {
		text = f.Message
	}
	if text == "" && len(f.Data) > 0 {
		var s string
		if err := json.Unmarshal(f.Data, &s); err == nil {
			text = s
		} else {
			var nested struct {
				Text    string `json:"text"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(f.Data, &nested); err == nil {
				text = nested.Text
				if text == "" {
					text = nested.Message
				}
			}
		}
	}

	return Command{
		Kind:        commandKinds[f.Type],
		Event:       f.Type,
		Text:        text,
		RecipientID: f.RecipientID,
		MessageID:   f.MessageID,
		ChatType:    f.ChatType,
		IsTyping:    f.IsTyping,
		Location:    f.Location,
		User1ID:     f.User1ID,
		User2ID:     f.User2ID,
	}, nil
}

// event builds an outbound frame: the event name under "type" plus the given
// fields, flat, matching what the frontends already consume.
func event(name string, fields map[string]any) map[string]any {
	payload := make(map[string]any, len(fields)+1)
	payload["type"] = name
	for k, v := range fields {
		payload[k] = v
	}
	return payload
}
