package nlu

import (
	"context"
	"errors"
	"log/slog"

	openai "github.com/openai/openai-go/v3"
)

const answerPrompt = `
You are VORTEX, a terse voice assistant running on the owner's workstation.
The user utterance was transcribed from speech and may contain recognition
errors. Reply with ONE short spoken sentence. No markdown, no lists, no
preamble. If you cannot help, say so in one sentence.
`

// OpenAIAnswerer handles utterances the rule parser cannot classify by
// asking a chat model for a one-sentence spoken reply.
type OpenAIAnswerer struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAIAnswerer(client openai.Client, model openai.ChatModel) *OpenAIAnswerer {
	if model == "" {
		model = openai.ChatModelGPT5Nano
	}
	return &OpenAIAnswerer{client: client, model: model}
}

func (a *OpenAIAnswerer) Answer(ctx context.Context, transcript string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(answerPrompt),
			openai.UserMessage(transcript),
		},
		Model: a.model,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}
	slog.Debug("answerer reply", "chars", len(content))
	return content, nil
}
