package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaHost is used when no host is configured.
const DefaultOllamaHost = "http://localhost:11434"

func init() {
	RegisterProvider("ollama", func(cfg FactoryConfig) (Generator, error) {
		return NewOllamaGenerator(cfg.OllamaHost, cfg.Model, cfg.HTTPClient, cfg.Tracker)
	})
}

// OllamaGenerator talks to a local or remote Ollama server.
type OllamaGenerator struct {
	client  *api.Client
	model   string
	tracker *TokenTracker
}

// NewOllamaGenerator creates a generator for host. An empty host means
// DefaultOllamaHost.
func NewOllamaGenerator(host, model string, httpClient *http.Client, tracker *TokenTracker) (*OllamaGenerator, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if model == "" {
		return nil, errors.New("ollama: model name is required")
	}
	return &OllamaGenerator{
		client:  api.NewClient(base, httpClient),
		model:   model,
		tracker: tracker,
	}, nil
}

// Generate runs a non-streaming completion.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}

	stream := false
	req := &api.GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		System:  opts.System,
		Stream:  &stream,
		Options: ollamaOptions(opts),
	}

	var out strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		if resp.Done {
			g.tracker.Add(int64(resp.PromptEvalCount), int64(resp.EvalCount))
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", statusError("ollama", statusErr.StatusCode, statusErr.ErrorMessage)
		}
		return "", Classify(err)
	}
	return out.String(), nil
}

func ollamaOptions(opts Options) map[string]any {
	o := map[string]any{}
	if opts.Temperature > 0 {
		o["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		o["top_p"] = opts.TopP
	}
	if opts.MaxTokens > 0 {
		o["num_predict"] = opts.MaxTokens
	}
	return o
}
