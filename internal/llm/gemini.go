package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/quickhelp/quickhelp/internal/logger"
	"google.golang.org/genai"
)

// GeminiProvider wraps the official Google Gen AI SDK.
type GeminiProvider struct {
	client    *genai.Client
	modelName string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini API client. endpoint overrides the
// API base URL when set.
func NewGeminiProvider(token, endpoint, model string) (*GeminiProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  token,
		Backend: genai.BackendGeminiAPI,
	}
	if endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:    client,
		modelName: model,
	}, nil
}

func (gp *GeminiProvider) Name() string {
	return "gemini"
}

func (gp *GeminiProvider) Complete(ctx context.Context, prompt string) (string, *Usage, error) {
	return gp.generate(ctx, genai.Text(prompt), nil)
}

// CompleteWithImage sends the prompt and the image as one multimodal turn.
func (gp *GeminiProvider) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, *Usage, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
		},
	}}

	// Transcription must not be creative
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}
	return gp.generate(ctx, contents, cfg)
}

func (gp *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, *Usage, error) {
	if gp.client == nil {
		return "", nil, fmt.Errorf("gemini SDK client not initialized")
	}

	resp, err := gp.client.Models.GenerateContent(ctx, gp.modelName, contents, cfg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate content: %w", err)
	}

	logger.Debug("Gemini SDK Response", logger.Fields{
		"candidates_count": len(resp.Candidates),
		"model":            gp.modelName,
	})

	if len(resp.Candidates) == 0 {
		return "", nil, fmt.Errorf("no candidates in Gemini response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", nil, fmt.Errorf("no content parts in Gemini response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	var usage *Usage
	if resp.UsageMetadata != nil {
		usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return sb.String(), usage, nil
}
