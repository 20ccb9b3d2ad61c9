package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

func init() {
	RegisterProvider("anthropic", func(cfg FactoryConfig) (Generator, error) {
		return NewAnthropicGenerator(cfg)
	}, "claude")
}

// AnthropicGenerator calls the Anthropic Messages API directly or through Bedrock.
type AnthropicGenerator struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *TokenTracker
}

// NewAnthropicGenerator creates a generator from cfg.
func NewAnthropicGenerator(cfg FactoryConfig) (*AnthropicGenerator, error) {
	var opts []option.RequestOption

	if cfg.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		if cfg.AnthropicKey == "" {
			return nil, errors.New("anthropic: api key is required")
		}
		opts = append(opts, option.WithAPIKey(cfg.AnthropicKey))
	}
	if cfg.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.AnthropicBaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	// Retries happen one level up so attempts are counted in one place.
	opts = append(opts, option.WithMaxRetries(0))

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	if cfg.UseBedrock {
		model = translateModelForBedrock(model)
	}

	return &AnthropicGenerator{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		tracker: cfg.Tracker,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// cross-region inference profiles.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic") {
		return model
	}
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Generate sends a single-turn message.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := g.model
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	resp, err := g.inner.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("anthropic", apiErr.StatusCode, apiErr.Error())
		}
		return "", Classify(err)
	}
	g.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 && resp.StopReason == anthropic.StopReasonMaxTokens {
		return "", fmt.Errorf("anthropic: output truncated at %d tokens", maxTokens)
	}
	return out.String(), nil
}
