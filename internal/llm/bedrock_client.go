package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"

	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/observability"
	"github.com/verydemure/meditation-gateway/internal/prompt"
)

// textGenerationConfig is the per-model tuning sent to Bedrock
type textGenerationConfig map[string]any

// modelDefaults holds the text generation settings per Bedrock model.
// Models without an entry get an empty config.
var modelDefaults = map[string]textGenerationConfig{
	"amazon.titan-text-premier-v1:0": {
		"maxTokenCount": 512,
		"temperature":   0.5,
	},
	"meta.llama3-8b-instruct-v1:0":    {},
	"meta.llama2-13b-chat-v1":         {},
	"mistral.mistral-large-2402-v1:0": {},
}

// bedrockAPI is the subset of the Bedrock runtime client we use
type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements ScriptGenerator using Amazon Bedrock foundation models
type BedrockClient struct {
	api     bedrockAPI
	timeout time.Duration
	logger  zerolog.Logger
}

type bedrockRequest struct {
	InputText            string               `json:"inputText"`
	TextGenerationConfig textGenerationConfig `json:"textGenerationConfig"`
}

type bedrockResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

// NewBedrockClient creates a Bedrock script generator from an AWS config
func NewBedrockClient(awsCfg aws.Config, cfg *config.Config) *BedrockClient {
	return newBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.LLMTimeoutDuration())
}

func newBedrockClient(api bedrockAPI, timeout time.Duration) *BedrockClient {
	return &BedrockClient{
		api:     api,
		timeout: timeout,
		logger:  observability.WithComponent("llm").With().Str("provider", string(ProviderBedrock)).Logger(),
	}
}

// Generate invokes the model and returns the first result's output text
func (c *BedrockClient) Generate(ctx context.Context, req ScriptRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultBedrockModel
	}

	genConfig, ok := modelDefaults[model]
	if !ok {
		genConfig = textGenerationConfig{}
	}

	text := prompt.Generate(req.Config)
	body, err := json.Marshal(bedrockRequest{InputText: text, TextGenerationConfig: genConfig})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	c.logger.Debug().Str("model", model).Str("prompt", text).Msg("Requesting meditation script")

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke %s: %w", model, err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode bedrock response: %w", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].OutputText == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().Int("chars", len(resp.Results[0].OutputText)).Msg("Received meditation script")
	return resp.Results[0].OutputText, nil
}
