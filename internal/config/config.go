package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/verydemure/meditation-gateway/internal/speech"
)

// EnvPrefix namespaces every variable, e.g. VERYDEMURE_PORT. The unprefixed
// name is used when the prefixed one is unset.
const EnvPrefix = "VERYDEMURE"

// Config holds all configuration for the meditation gateway and CLI
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // grpc.health.v1 listener

	// Where generated audio files are written
	OutputDir string `envconfig:"OUTPUT_DIR" default:"./output/"`

	// Script generation
	LLMProvider   string `envconfig:"LLM_PROVIDER" default:"bedrock"` // bedrock, openai
	LLMModel      string `envconfig:"LLM_MODEL" default:""`           // empty means provider default
	LLMTimeout    int    `envconfig:"LLM_TIMEOUT" default:"120"`      // seconds
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	// AWS (Bedrock and Polly). Credentials come from the default chain.
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSMaxAttempts int    `envconfig:"AWS_MAX_ATTEMPTS" default:"3"` // SDK retryer attempts

	// Speech synthesis
	TTSTimeout      int    `envconfig:"TTS_TIMEOUT" default:"90"`          // seconds
	TTSOutputFormat string `envconfig:"TTS_OUTPUT_FORMAT" default:"mp3"` // mp3, ogg_vorbis, pcm
	MaxSSMLChars    int    `envconfig:"MAX_SSML_CHARS" default:"100000"` // Polly's SSML input limit

	// Defaults for requests that leave a field empty
	DefaultEngine          string `envconfig:"DEFAULT_ENGINE" default:"neural"`
	DefaultVoice           string `envconfig:"DEFAULT_VOICE" default:"Matthew"`
	DefaultVoiceSpeed      string `envconfig:"DEFAULT_VOICE_SPEED" default:"slow"`
	DefaultDurationMinutes string `envconfig:"DEFAULT_DURATION_MINUTES" default:"10"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg, err := Process()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Process reads configuration without validating it, for callers that apply
// overrides first and then call Validate.
// It first attempts to load from .env file if it exists, then from environment
func Process() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "bedrock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER is openai")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be bedrock or openai, got %q", c.LLMProvider)
	}

	if !speech.Voice(c.DefaultVoice).Valid() {
		return fmt.Errorf("DEFAULT_VOICE: %w", &speech.ValidationError{
			Field:   "voice",
			Value:   c.DefaultVoice,
			Allowed: speech.ValidVoices,
		})
	}

	if err := speech.ValidateDuration(c.DefaultDurationMinutes); err != nil {
		return fmt.Errorf("DEFAULT_DURATION_MINUTES: %w", err)
	}

	if c.MaxSSMLChars <= 0 {
		return fmt.Errorf("MAX_SSML_CHARS must be positive, got %d", c.MaxSSMLChars)
	}

	switch c.TTSOutputFormat {
	case "mp3", "ogg_vorbis", "pcm":
	default:
		return fmt.Errorf("TTS_OUTPUT_FORMAT must be mp3, ogg_vorbis or pcm, got %q", c.TTSOutputFormat)
	}

	return nil
}

// DefaultSynthConfig returns the configured request defaults
func (c *Config) DefaultSynthConfig() speech.SynthConfig {
	return speech.SynthConfig{
		Engine:          c.DefaultEngine,
		Voice:           speech.Voice(c.DefaultVoice),
		VoiceSpeed:      c.DefaultVoiceSpeed,
		DurationMinutes: c.DefaultDurationMinutes,
	}
}

// LLMTimeoutDuration returns LLMTimeout as a time.Duration
func (c *Config) LLMTimeoutDuration() time.Duration {
	return time.Duration(c.LLMTimeout) * time.Second
}

// TTSTimeoutDuration returns TTSTimeout as a time.Duration
func (c *Config) TTSTimeoutDuration() time.Duration {
	return time.Duration(c.TTSTimeout) * time.Second
}

// CircuitBreakerResetDuration returns CircuitBreakerResetTimeout as a time.Duration
func (c *Config) CircuitBreakerResetDuration() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}
