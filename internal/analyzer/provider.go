package analyzer

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/voxhr/complaint-bot/internal/models"
)

// Completion is the raw outcome of one provider call before sanitization.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is a text-completion service expected, but not trusted, to
// return JSON matching the requested shape.
type Provider interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// OpenAIProvider calls the OpenAI chat completion API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewOpenAIProvider(apiKey, model string, maxTokens int, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (*Completion, error) {
	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   p.maxTokens,
			Temperature: float32(p.temperature),
		},
	)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &models.ProviderError{Kind: models.ProviderAPI, Err: errors.New("empty choice list")}
	}

	return &Completion{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.ProviderError{Kind: models.ProviderTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 && apiErrCode(apiErr) == "insufficient_quota":
			return &models.ProviderError{Kind: models.ProviderQuota, Err: err}
		case apiErr.HTTPStatusCode == 429:
			return &models.ProviderError{Kind: models.ProviderRateLimit, Err: err}
		}
		return &models.ProviderError{Kind: models.ProviderAPI, Err: err}
	}

	return &models.ProviderError{Kind: models.ProviderAPI, Err: err}
}

func apiErrCode(apiErr *openai.APIError) string {
	if code, ok := apiErr.Code.(string); ok {
		return code
	}
	return ""
}
