package llm

import (
	"context"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	goopenai "github.com/sashabaranov/go-openai"
)

// openaiProvider sends prompts to the OpenAI chat completions API.
type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(apiKey, model string) (Provider, error) {
	return &openaiProvider{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

func (p *openaiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %s: %w", p.model, err)
	}
	parts := make([]string, 0, 1)
	if len(resp.Choices) > 0 {
		parts = append(parts, resp.Choices[0].Message.Content)
	}
	return joinText("openai", parts)
}

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// groqProvider talks to Groq, or any server named by GROQ_BASE_URL, through
// an OpenAI-compatible client.
type groqProvider struct {
	client *goopenai.Client
	model  string
}

func newGroqProvider(apiKey, model string) (Provider, error) {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL
	if u := os.Getenv("GROQ_BASE_URL"); u != "" {
		cfg.BaseURL = u
	}
	return &groqProvider{client: goopenai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *groqProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("groq: %s: %w", p.model, err)
	}
	parts := make([]string, 0, 1)
	if len(resp.Choices) > 0 {
		parts = append(parts, resp.Choices[0].Message.Content)
	}
	return joinText("groq", parts)
}
