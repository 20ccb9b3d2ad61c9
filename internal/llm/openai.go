package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

func init() {
	RegisterProvider("openai", func(cfg FactoryConfig) (Generator, error) {
		return NewOpenAIGenerator(cfg)
	}, "openai-compatible")
}

// OpenAIGenerator calls any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	tracker *TokenTracker
}

// NewOpenAIGenerator creates a generator from cfg.
func NewOpenAIGenerator(cfg FactoryConfig) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: model name is required")
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.OpenAIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.OpenAIKey))
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		tracker: cfg.Tracker,
	}, nil
}

// Generate runs a non-streaming chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		req.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		req.TopP = openai.Float(opts.TopP)
	}

	resp, err := g.client.Chat.Completions.New(ctx, req)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", statusError("openai", apiErr.StatusCode, apiErr.Error())
		}
		return "", Classify(err)
	}
	g.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
