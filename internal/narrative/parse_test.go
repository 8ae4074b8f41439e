package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStrictJSON_Plain(t *testing.T) {
	var out struct {
		A string `json:"a"`
	}
	require.NoError(t, decodeStrictJSON(`{"a": "x"}`, &out))
	assert.Equal(t, "x", out.A)
}

func TestDecodeStrictJSON_CodeFence(t *testing.T) {
	var out struct {
		A string `json:"a"`
	}
	text := "```json\n{\"a\": \"x\"}\n```"
	require.NoError(t, decodeStrictJSON(text, &out))
	assert.Equal(t, "x", out.A)
}

func TestDecodeStrictJSON_SurroundingProse(t *testing.T) {
	var out struct {
		A string `json:"a"`
	}
	text := `Here is the summary you asked for: {"a": "x"} Hope that helps!`
	require.NoError(t, decodeStrictJSON(text, &out))
	assert.Equal(t, "x", out.A)
}

func TestDecodeStrictJSON_Rejections(t *testing.T) {
	var out map[string]any
	assert.Error(t, decodeStrictJSON("", &out))
	assert.Error(t, decodeStrictJSON("   ", &out))
	assert.Error(t, decodeStrictJSON("no json here", &out))
	assert.Error(t, decodeStrictJSON("{broken", &out))
}
