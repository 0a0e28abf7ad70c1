package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// geminiOpenAIBaseURL is Google's OpenAI-compatible endpoint for Gemini
// models, which lets the same chat-completions adapter serve both families.
const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// ChatCompletionsProvider serves the GPT-like family via the OpenAI SDK.
// Pointed at a compatible base URL it serves the Gemini-like family too.
type ChatCompletionsProvider struct {
	family string
	client openai.Client
}

// NewOpenAIProvider builds the GPT-like provider.
func NewOpenAIProvider(apiKey string) (*ChatCompletionsProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	return &ChatCompletionsProvider{
		family: FamilyOpenAI,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// NewGeminiProvider builds the Gemini-like provider over the
// OpenAI-compatible endpoint.
func NewGeminiProvider(apiKey string) (*ChatCompletionsProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	return &ChatCompletionsProvider{
		family: FamilyGemini,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(geminiOpenAIBaseURL),
		),
	}, nil
}

func (p *ChatCompletionsProvider) Family() string { return p.family }

func (p *ChatCompletionsProvider) Call(ctx context.Context, model string, req Request) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.family, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s chat completion: empty choices", p.family)
	}
	return &Reply{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
