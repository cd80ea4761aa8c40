package cogs

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompletionAPI struct {
	lastRequest openai.ChatCompletionRequest
	answer      string
	err         error
}

func (f *fakeCompletionAPI) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = request
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.answer}},
		},
	}, nil
}

func newTestCompletion(t *testing.T, api *fakeCompletionAPI) (*Completion, *fakeSession) {
	t.Helper()
	session := newFakeSession()
	return NewCompletion(api, zap.NewNop(), "gpt-4o-mini", 256), session
}

func runAskCommand(t *testing.T, cog *Completion, session *fakeSession, args ...string) error {
	t.Helper()
	m := guildMessage(testGuildID, testChannelID, "user-1", "!ask")
	return cog.Command(nil).Run(&Context{Session: session, Message: m, Args: args})
}

func TestAsk_RepliesWithAnswer(t *testing.T) {
	api := &fakeCompletionAPI{answer: "  42  "}
	cog, session := newTestCompletion(t, api)

	require.NoError(t, runAskCommand(t, cog, session, "what", "is", "the", "answer?"))

	assert.Equal(t, "gpt-4o-mini", api.lastRequest.Model)
	assert.Equal(t, 256, api.lastRequest.MaxTokens)
	require.Len(t, api.lastRequest.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, api.lastRequest.Messages[0].Role)
	assert.Equal(t, "what is the answer?", api.lastRequest.Messages[0].Content)

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].content, "the answer is trimmed before sending")
}

func TestAsk_StripsMentionsAndEmoji(t *testing.T) {
	api := &fakeCompletionAPI{answer: "hi"}
	cog, session := newTestCompletion(t, api)

	require.NoError(t, runAskCommand(t, cog, session, "<@123>", "hello", "<a:wave:456>", "there"))

	assert.Equal(t, "hello  there", api.lastRequest.Messages[0].Content)
}

func TestAsk_EmptyPromptIsRejected(t *testing.T) {
	api := &fakeCompletionAPI{answer: "hi"}
	cog, session := newTestCompletion(t, api)

	err := runAskCommand(t, cog, session, "<@123>", "<:wave:456>")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, session.sentMessages(), "nothing reaches the API or the channel")
}

func TestAsk_UpstreamFailureSurfacesAsError(t *testing.T) {
	api := &fakeCompletionAPI{err: errors.New("rate limited")}
	cog, session := newTestCompletion(t, api)

	err := runAskCommand(t, cog, session, "hello")

	require.Error(t, err)
	var validationErr *ValidationError
	assert.False(t, errors.As(err, &validationErr), "upstream failures are not user mistakes")
	assert.Empty(t, session.sentMessages())
}

func TestAsk_EmptyChoicesIsAnError(t *testing.T) {
	api := &fakeCompletionAPI{answer: ""}
	cog, session := newTestCompletion(t, api)

	err := runAskCommand(t, cog, session, "hello")
	assert.Error(t, err)
}

func TestCleanMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<@123> hi", "hi"},
		{"<@!123> hi", "hi"},
		{"hi <:smile:123>", "hi"},
		{"hi <a:party:123> there", "hi  there"},
		{"<@1><:x:2>", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanMessage(tt.in), tt.in)
	}
}
