package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylxr59/prattle/pkg/types"
)

func TestCountText(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	assert.Equal(t, 0, tok.CountText(""))
	assert.Greater(t, tok.CountText("hello world"), 0)

	// More text means more tokens.
	short := tok.CountText("hello")
	long := tok.CountText("hello hello hello hello hello")
	assert.Greater(t, long, short)
}

func TestCountMessageIncludesOverhead(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	msg := types.NewUserMessage("hi")
	assert.Equal(t, tok.CountText("hi")+messageOverheadTokens, tok.CountMessage(msg))
	assert.Equal(t, 0, tok.CountMessage(nil))
}

func TestCountMessages(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	msgs := []*types.Message{
		types.NewUserMessage("what is the weather"),
		types.NewAssistantMessage("I cannot check the weather"),
	}
	want := tok.CountMessage(msgs[0]) + tok.CountMessage(msgs[1])
	assert.Equal(t, want, tok.CountMessages(msgs))
	assert.Equal(t, 0, tok.CountMessages(nil))
}
