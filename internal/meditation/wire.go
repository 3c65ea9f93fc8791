package meditation

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/llm"
	"github.com/verydemure/meditation-gateway/internal/storage"
	"github.com/verydemure/meditation-gateway/internal/tts"
)

// NewFromConfig wires Bedrock, Polly, OpenAI (when a key is set) and the
// file store into a Generator. AWS credentials come from the default chain.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Generator, error) {
	defaultProvider, err := llm.ParseProvider(cfg.LLMProvider)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithRetryMaxAttempts(cfg.AWSMaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	providers := map[llm.Provider]llm.ScriptGenerator{
		llm.ProviderBedrock: llm.NewBedrockClient(awsCfg, cfg),
	}
	if cfg.OpenAIAPIKey != "" {
		providers[llm.ProviderOpenAI] = llm.NewOpenAIClient(cfg)
	}

	return NewGenerator(
		providers,
		tts.NewPollyClient(awsCfg, cfg),
		storage.NewFileStore(cfg.OutputDir),
		Options{
			DefaultProvider: defaultProvider,
			DefaultModel:    cfg.LLMModel,
			MaxFailures:     cfg.CircuitBreakerMaxFailures,
			ResetTimeout:    cfg.CircuitBreakerResetDuration(),
			MaxSSMLChars:    cfg.MaxSSMLChars,
		},
	), nil
}
