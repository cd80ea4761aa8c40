package cogs

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/ratelimit"
)

const completionTimeout = 30 * time.Second

// customEmojiPattern matches Discord custom-emoji tokens like
// <:name:123> and <a:name:123>.
var customEmojiPattern = regexp.MustCompile(`<a?:[A-Za-z0-9_]+:[0-9]+>`)

// completionAPI is the slice of the OpenAI client the cog uses.
// *openai.Client satisfies it.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Completion answers free-text questions through the completion API.
type Completion struct {
	client    completionAPI
	logger    *zap.Logger
	model     string
	maxTokens int
}

// NewCompletion creates the completion cog.
func NewCompletion(client completionAPI, logger *zap.Logger, model string, maxTokens int) *Completion {
	return &Completion{
		client:    client,
		logger:    logger,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Command returns the "ask" command for the router.
func (c *Completion) Command(cooldown *ratelimit.Limiter) *Command {
	return &Command{
		Name:     "ask",
		Help:     "Ask the bot a question: ask <prompt>",
		Cooldown: cooldown,
		Run:      c.runAsk,
	}
}

func (c *Completion) runAsk(cmdCtx *Context) error {
	prompt := CleanMessage(cmdCtx.RestArgs(0))
	if prompt == "" {
		return Validationf("Ask me something: ask <prompt>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Error("completion request failed", zap.Error(err))
		return fmt.Errorf("completion request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("completion returned no choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return fmt.Errorf("completion returned an empty answer")
	}

	return cmdCtx.Reply(answer)
}

// CleanMessage strips custom-emoji and mention tokens from user text
// before it goes to the completion API.
func CleanMessage(text string) string {
	text = userMentionPattern.ReplaceAllString(text, "")
	text = customEmojiPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
