package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())
}

func TestMessageResponse_Text_Empty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Empty(t, resp.Text())
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "", Content: "defaults to user"},
	})
	assert.Len(t, msgs, 3)
}

func TestToSDKMessages_Empty(t *testing.T) {
	assert.Empty(t, toSDKMessages(nil))
}

func TestFromSDKMessage(t *testing.T) {
	msg := &sdk.Message{
		ID:         "msg_1",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "summary"},
		},
		Usage: sdk.Usage{InputTokens: 12, OutputTokens: 34},
	}

	got := fromSDKMessage(msg)
	assert.Equal(t, "msg_1", got.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", got.Model)
	assert.Equal(t, "end_turn", got.StopReason)
	assert.Equal(t, "summary", got.Text())
	assert.Equal(t, int64(12), got.Usage.InputTokens)
	assert.Equal(t, int64(34), got.Usage.OutputTokens)
}
