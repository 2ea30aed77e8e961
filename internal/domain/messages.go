package domain

import (
	"encoding/json"
	"fmt"
)

// WebSocket frame types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeChatMessage = "message"
	MsgTypeTyping      = "typing"
)

// WebSocket frame types to client.
const (
	MsgTypeConnected       = "connected"
	MsgTypeMessageReceived = "message_received"
	MsgTypeTypingIndicator = "typing_indicator"
	MsgTypeError           = "error"
)

// Error frame texts.
const (
	ErrTextInvalidToken         = "Invalid token"
	ErrTextNotAuthenticated     = "Not authenticated"
	ErrTextSendFailed           = "Failed to send message"
	ErrTextAlreadyAuthenticated = "Already authenticated"
)

// ChatMessage is a persisted direct message. EncryptedContent and IV are
// opaque to the relay.
type ChatMessage struct {
	ID               string `json:"id"`
	SenderID         string `json:"sender_id"`
	ReceiverID       string `json:"receiver_id"`
	EncryptedContent string `json:"encrypted_content"`
	IV               string `json:"iv"`
	CreatedAt        string `json:"created_at"`
	IsRead           bool   `json:"is_read"`
}

// Frame is one relay protocol message. The set of implementations is closed.
type Frame interface {
	FrameType() string
	frame()
}

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server frames

type AuthMessage struct {
	Token string `json:"token"`
}

type ChatSendMessage struct {
	ReceiverID       string `json:"receiver_id"`
	EncryptedContent string `json:"encrypted_content"`
	IV               string `json:"iv"`
}

type TypingMessage struct {
	ReceiverID string `json:"receiver_id"`
}

// Server -> Client frames

type ConnectedMessage struct {
	UserID string `json:"user_id"`
}

type MessageReceivedMessage struct {
	Message ChatMessage `json:"message"`
}

type TypingIndicatorMessage struct {
	SenderID string `json:"sender_id"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{Message: message}
}

func (*AuthMessage) FrameType() string            { return MsgTypeAuth }
func (*ChatSendMessage) FrameType() string        { return MsgTypeChatMessage }
func (*TypingMessage) FrameType() string          { return MsgTypeTyping }
func (*ConnectedMessage) FrameType() string       { return MsgTypeConnected }
func (*MessageReceivedMessage) FrameType() string { return MsgTypeMessageReceived }
func (*TypingIndicatorMessage) FrameType() string { return MsgTypeTypingIndicator }
func (*ErrorMessage) FrameType() string           { return MsgTypeError }

func (*AuthMessage) frame()            {}
func (*ChatSendMessage) frame()        {}
func (*TypingMessage) frame()          {}
func (*ConnectedMessage) frame()       {}
func (*MessageReceivedMessage) frame() {}
func (*TypingIndicatorMessage) frame() {}
func (*ErrorMessage) frame()           {}

// DecodeFrame parses a text frame. ok is false for malformed JSON, an
// unknown type, or a payload that does not fit its type; callers ignore
// such frames.
func DecodeFrame(data []byte) (f Frame, ok bool) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, false
	}

	switch base.Type {
	case MsgTypeAuth:
		f = &AuthMessage{}
	case MsgTypeChatMessage:
		f = &ChatSendMessage{}
	case MsgTypeTyping:
		f = &TypingMessage{}
	case MsgTypeConnected:
		f = &ConnectedMessage{}
	case MsgTypeMessageReceived:
		f = &MessageReceivedMessage{}
	case MsgTypeTypingIndicator:
		f = &TypingIndicatorMessage{}
	case MsgTypeError:
		f = &ErrorMessage{}
	default:
		return nil, false
	}

	if err := json.Unmarshal(data, f); err != nil {
		return nil, false
	}
	return f, true
}

// EncodeFrame renders f as a JSON object with its "type" tag first.
func EncodeFrame(f Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("encode frame: nil frame")
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.FrameType(), err)
	}

	tag, _ := json.Marshal(f.FrameType())
	out := make([]byte, 0, len(body)+len(tag)+9)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
