package llm

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// FactoryConfig captures the inputs required to construct a provider backend.
type FactoryConfig struct {
	Provider string
	Model    string

	OllamaHost string

	AnthropicKey     string
	AnthropicBaseURL string
	UseBedrock       bool
	AWSRegion        string
	AWSProfile       string

	OpenAIKey     string
	OpenAIBaseURL string

	// HTTPClient is used by backends that accept one. Nil means a default client.
	HTTPClient *http.Client
	// Tracker receives token usage. Nil disables tracking.
	Tracker *TokenTracker
}

// ProviderFactory implements provider-specific Generator creation.
type ProviderFactory func(FactoryConfig) (Generator, error)

var (
	mu         sync.RWMutex
	providers  = map[string]ProviderFactory{}
	defaultKey = "ollama"
)

// RegisterProvider registers a provider factory under one or more names.
func RegisterProvider(name string, factory ProviderFactory, aliases ...string) {
	mu.Lock()
	defer mu.Unlock()

	all := append([]string{name}, aliases...)
	for _, n := range all {
		providers[strings.ToLower(n)] = factory
	}
}

// New returns the Generator for cfg.Provider.
func New(cfg FactoryConfig) (Generator, error) {
	providerName := cfg.Provider
	if strings.TrimSpace(providerName) == "" {
		providerName = defaultKey
	}

	mu.RLock()
	factory := providers[strings.ToLower(providerName)]
	mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("llm: provider %q not registered", providerName)
	}
	return factory(cfg)
}

// Providers lists registered provider names, aliases included.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
