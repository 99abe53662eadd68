package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider talks to the Chat Completions API or any compatible
// endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider; endpoint may be empty for the
// official API. SDK retries are disabled: a failed call is reported as is.
func NewOpenAIProvider(token, endpoint, model string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithMaxRetries(0),
	}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, *Usage, error) {
	return p.complete(ctx, openai.UserMessage(prompt))
}

func (p *OpenAIProvider) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, *Usage, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	msg := openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}),
	})
	return p.complete(ctx, msg)
}

func (p *OpenAIProvider) complete(ctx context.Context, msg openai.ChatCompletionMessageParamUnion) (string, *Usage, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{msg},
	})
	if err != nil {
		return "", nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in %s response", p.Name())
	}

	usage := &Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	return resp.Choices[0].Message.Content, usage, nil
}
