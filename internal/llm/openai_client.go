package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/observability"
	"github.com/verydemure/meditation-gateway/internal/prompt"
)

const openAISystemMessage = "You are a helpful assistant."

// OpenAIClient implements ScriptGenerator using the chat completions API
type OpenAIClient struct {
	apiKey     string
	apiURL     string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// chatMessage is one entry of a chat completions conversation
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest represents the request payload for the chat completions API
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI script generator
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     cfg.OpenAIAPIKey,
		apiURL:     strings.TrimRight(cfg.OpenAIBaseURL, "/") + "/chat/completions",
		timeout:    cfg.LLMTimeoutDuration(),
		httpClient: &http.Client{},
		logger:     observability.WithComponent("llm").With().Str("provider", string(ProviderOpenAI)).Logger(),
	}
}

// Generate sends the meditation prompt and returns the first choice's content
func (c *OpenAIClient) Generate(ctx context.Context, req ScriptRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	text := prompt.Generate(req.Config)
	c.logger.Debug().Str("model", model).Str("prompt", text).Msg("Requesting meditation script")

	jsonData, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: openAISystemMessage},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// adopt timeout from ctx or fall back to the configured one
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openai API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	content := completion.Choices[0].Message.Content
	c.logger.Debug().Int("chars", len(content)).Msg("Received meditation script")
	return content, nil
}
