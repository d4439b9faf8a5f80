package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalprabhu/File-Chat/internal/config"
	"github.com/prajwalprabhu/File-Chat/internal/testutil"
)

func TestGenerateContent(t *testing.T) {
	llm := &testutil.FakeLLM{Respond: func(p string) (string, error) { return "echo: " + p, nil }}

	out, err := GenerateContent(context.Background(), llm, "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out)
	assert.Equal(t, []string{"hello"}, llm.Calls())
}

func TestGenerateContentWrapsFailure(t *testing.T) {
	llm := &testutil.FakeLLM{Respond: func(string) (string, error) { return "", errors.New("rate limited") }}

	_, err := GenerateContent(context.Background(), llm, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationProvider)
	assert.Len(t, llm.Calls(), 1)
}

func TestStripThinking(t *testing.T) {
	assert.Equal(t, "Answer.", StripThinking("<think>\nreasoning\nmore</think>\n\nAnswer."))
	assert.Equal(t, "plain", StripThinking("plain"))
}

func TestNewModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewModel(config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)
}
