// Package llm is the language-model boundary: a single Generate call that
// turns a prompt into text, with provider backends registered by name.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrConnection means the backend could not be reached or failed transiently.
	ErrConnection = errors.New("language model connection error")
	// ErrGenerationTimeout means the backend did not answer within the call budget.
	ErrGenerationTimeout = errors.New("language model generation timed out")
)

// Options are the per-call generation parameters. Zero values leave the
// backend default in place.
type Options struct {
	// System is the role's system prompt.
	System string
	// Model overrides the generator's configured model.
	Model string
	// Temperature is passed through unmodified.
	Temperature float64
	// TopP is the nucleus sampling cutoff.
	TopP float64
	// MaxTokens caps the generated output.
	MaxTokens int
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts Options) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// Classify maps transport failures onto ErrConnection and ErrGenerationTimeout.
// Cancellation and errors it does not recognise are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrGenerationTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return err
}

// statusError classifies an HTTP status returned by a backend.
func statusError(provider string, code int, msg string) error {
	err := fmt.Errorf("%s: status %d: %s", provider, code, msg)
	switch {
	case code == 408 || code == 504:
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	case code == 429 || code >= 500:
		return fmt.Errorf("%w: %v", ErrConnection, err)
	default:
		return err
	}
}
