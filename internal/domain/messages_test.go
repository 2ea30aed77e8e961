package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_ClientFrames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Frame
	}{
		{"auth", `{"type":"auth","token":"t"}`, &AuthMessage{Token: "t"}},
		{
			"message",
			`{"type":"message","receiver_id":"b","encrypted_content":"ct","iv":"iv"}`,
			&ChatSendMessage{ReceiverID: "b", EncryptedContent: "ct", IV: "iv"},
		},
		{"typing", `{"type":"typing","receiver_id":"b"}`, &TypingMessage{ReceiverID: "b"}},
		{"extra fields", `{"type":"typing","receiver_id":"b","x":1}`, &TypingMessage{ReceiverID: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeFrame([]byte(tt.in))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFrame_Ignored(t *testing.T) {
	for _, in := range []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"type":"subscribe"}`,
		`{"type":42}`,
		`{"type":"auth","token":5}`,
		`{"type":"message","receiver_id":["b"]}`,
	} {
		_, ok := DecodeFrame([]byte(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestEncodeFrame_TagFirst(t *testing.T) {
	data, err := EncodeFrame(&ConnectedMessage{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"connected","user_id":"alice"}`, string(data))

	data, err = EncodeFrame(NewErrorMessage(ErrTextInvalidToken))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"Invalid token"}`, string(data))

	_, err = EncodeFrame(nil)
	assert.Error(t, err)
}

func TestFrame_RoundTrip(t *testing.T) {
	frames := []Frame{
		&AuthMessage{Token: "tok"},
		&ChatSendMessage{ReceiverID: "b", EncryptedContent: "Y3Q=", IV: "aXY="},
		&TypingMessage{ReceiverID: "b"},
		&ConnectedMessage{UserID: "a"},
		&MessageReceivedMessage{Message: ChatMessage{
			ID: "m1", SenderID: "a", ReceiverID: "b", EncryptedContent: "Y3Q=", IV: "aXY=",
			CreatedAt: "2024-01-01T00:00:00Z",
		}},
		&TypingIndicatorMessage{SenderID: "a"},
		NewErrorMessage(ErrTextSendFailed),
	}
	for _, f := range frames {
		t.Run(f.FrameType(), func(t *testing.T) {
			data, err := EncodeFrame(f)
			require.NoError(t, err)

			var base BaseMessage
			require.NoError(t, json.Unmarshal(data, &base))
			assert.Equal(t, f.FrameType(), base.Type)

			got, ok := DecodeFrame(data)
			require.True(t, ok)
			assert.Equal(t, f, got)
		})
	}
}
