package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/speech"
)

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("OpenAI")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	p, err = ParseProvider(" bedrock ")
	require.NoError(t, err)
	assert.Equal(t, ProviderBedrock, p)

	_, err = ParseProvider("gemini")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProvider_DefaultModel(t *testing.T) {
	assert.Equal(t, "gpt-4o", ProviderOpenAI.DefaultModel())
	assert.Equal(t, "amazon.titan-text-premier-v1:0", ProviderBedrock.DefaultModel())
}

func TestSanitizeModelName(t *testing.T) {
	assert.Equal(t, "amazon_titan_text_premier_v1_0", SanitizeModelName("amazon.titan-text-premier-v1:0"))
	assert.Equal(t, "gpt_4o", SanitizeModelName("gpt-4o"))
}

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(&config.Config{
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL + "/v1/",
		LLMTimeout:    5,
	})
}

func TestOpenAIClient_Generate(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, openAISystemMessage, req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Contains(t, req.Messages[1].Content, "should last\n10 minutes")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[SCRIPT]Breathe.[SCRIPT]"}}]}`))
	})

	cfg := speech.DefaultSynthConfig()
	cfg.DurationMinutes = "10"
	got, err := client.Generate(context.Background(), ScriptRequest{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "[SCRIPT]Breathe.[SCRIPT]", got)
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limit"}`, http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig(), Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limit")
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig()})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_ContextCancelled(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, ScriptRequest{Config: speech.DefaultSynthConfig()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// fakeBedrock records the last request and replies with body or err
type fakeBedrock struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrockClient_Generate(t *testing.T) {
	api := &fakeBedrock{body: `{"results":[{"outputText":"Intro [SCRIPT]Welcome.\n[PAUSE 1m][SCRIPT]"}]}`}
	client := newBedrockClient(api, time.Second)

	got, err := client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig()})
	require.NoError(t, err)
	assert.Equal(t, "Intro [SCRIPT]Welcome.\n[PAUSE 1m][SCRIPT]", got)

	require.NotNil(t, api.input)
	assert.Equal(t, DefaultBedrockModel, aws.ToString(api.input.ModelId))
	assert.Equal(t, "application/json", aws.ToString(api.input.ContentType))
	assert.Equal(t, "application/json", aws.ToString(api.input.Accept))

	var sent struct {
		InputText            string         `json:"inputText"`
		TextGenerationConfig map[string]any `json:"textGenerationConfig"`
	}
	require.NoError(t, json.Unmarshal(api.input.Body, &sent))
	assert.True(t, strings.Contains(sent.InputText, "[SCRIPT]"))
	assert.Equal(t, float64(512), sent.TextGenerationConfig["maxTokenCount"])
	assert.Equal(t, 0.5, sent.TextGenerationConfig["temperature"])
}

func TestBedrockClient_UnknownModelGetsEmptyConfig(t *testing.T) {
	api := &fakeBedrock{body: `{"results":[{"outputText":"x"}]}`}
	client := newBedrockClient(api, time.Second)

	_, err := client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig(), Model: "vendor.some-model"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(mustField(t, api.input.Body, "textGenerationConfig")))
}

func TestBedrockClient_Errors(t *testing.T) {
	client := newBedrockClient(&fakeBedrock{err: errors.New("AccessDeniedException")}, time.Second)
	_, err := client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")

	client = newBedrockClient(&fakeBedrock{body: `{"results":[]}`}, time.Second)
	_, err = client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig()})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	client = newBedrockClient(&fakeBedrock{body: `not json`}, time.Second)
	_, err = client.Generate(context.Background(), ScriptRequest{Config: speech.DefaultSynthConfig()})
	assert.Error(t, err)
}

func mustField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return m[field]
}
