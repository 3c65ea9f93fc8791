package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/verydemure/meditation-gateway/internal/speech"
)

// Provider names a script generation backend
type Provider string

const (
	ProviderBedrock Provider = "bedrock"
	ProviderOpenAI  Provider = "openai"
)

// Default models per provider
const (
	DefaultBedrockModel = "amazon.titan-text-premier-v1:0"
	DefaultOpenAIModel  = "gpt-4o"
)

// ErrUnknownProvider is returned by ParseProvider
var ErrUnknownProvider = errors.New("unknown llm provider")

// ErrEmptyResponse is returned when a model replies without any text
var ErrEmptyResponse = errors.New("model returned no text")

// ParseProvider accepts "bedrock" or "openai", case-insensitively
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderBedrock, ProviderOpenAI:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// DefaultModel returns the model used when a request does not name one
func (p Provider) DefaultModel() string {
	if p == ProviderOpenAI {
		return DefaultOpenAIModel
	}
	return DefaultBedrockModel
}

// ScriptRequest asks for one meditation script
type ScriptRequest struct {
	Config speech.SynthConfig
	Model  string // empty means the provider default
}

// ScriptGenerator defines the interface for a meditation script backend
type ScriptGenerator interface {
	// Generate returns the model's raw reply, delimiters included
	Generate(ctx context.Context, req ScriptRequest) (string, error)
}

var modelNameReplacer = strings.NewReplacer(":", "_", ".", "_", "-", "_")

// SanitizeModelName makes a model ID safe for use in a file name
func SanitizeModelName(name string) string {
	return modelNameReplacer.Replace(name)
}
