package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/observability"
)

// ErrEmptyAudio is returned when Polly answers with an empty stream
var ErrEmptyAudio = errors.New("polly returned empty audio")

// pollyAPI is the subset of the Polly client we use
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyClient implements Synthesizer using Amazon Polly
type PollyClient struct {
	api          pollyAPI
	outputFormat string
	timeout      time.Duration
	logger       zerolog.Logger
}

// NewPollyClient creates a new Polly synthesizer from an AWS config
func NewPollyClient(awsCfg aws.Config, cfg *config.Config) *PollyClient {
	return newPollyClient(polly.NewFromConfig(awsCfg), cfg.TTSOutputFormat, cfg.TTSTimeoutDuration())
}

func newPollyClient(api pollyAPI, outputFormat string, timeout time.Duration) *PollyClient {
	if outputFormat == "" {
		outputFormat = string(types.OutputFormatMp3)
	}
	return &PollyClient{
		api:          api,
		outputFormat: outputFormat,
		timeout:      timeout,
		logger:       observability.WithComponent("tts"),
	}
}

// Synthesize sends the markup to Polly and reads the whole audio stream
func (c *PollyClient) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	textType := req.TextType
	if textType == "" {
		textType = TextTypeSSML
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Info().
		Str("voice", req.VoiceID).
		Str("engine", req.Engine).
		Str("format", c.outputFormat).
		Int("chars", len(req.Text)).
		Msg("Starting Polly synthesis")
	start := time.Now()

	out, err := c.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       types.Engine(req.Engine),
		OutputFormat: types.OutputFormat(c.outputFormat),
		Text:         aws.String(req.Text),
		TextType:     types.TextType(textType),
		VoiceId:      types.VoiceId(req.VoiceID),
	})
	if err != nil {
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read polly audio stream: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	c.logger.Info().
		Str("size", humanize.Bytes(uint64(len(data)))).
		Dur("elapsed", time.Since(start)).
		Msg("Polly synthesis completed")

	return &Audio{Data: data, Format: c.outputFormat}, nil
}
