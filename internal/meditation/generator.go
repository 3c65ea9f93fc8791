// Package meditation runs the end-to-end pipeline: prompt a model for a
// script, translate its pause markers to SSML, synthesize the audio and save
// it.
package meditation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/verydemure/meditation-gateway/internal/llm"
	"github.com/verydemure/meditation-gateway/internal/observability"
	"github.com/verydemure/meditation-gateway/internal/prompt"
	"github.com/verydemure/meditation-gateway/internal/resilience"
	"github.com/verydemure/meditation-gateway/internal/speech"
	"github.com/verydemure/meditation-gateway/internal/ssml"
	"github.com/verydemure/meditation-gateway/internal/storage"
	"github.com/verydemure/meditation-gateway/internal/tts"
)

// Stage is a step of the pipeline reported through ProgressFunc
type Stage string

const (
	StageScript    Stage = "script"
	StageMarkup    Stage = "markup"
	StageSynthesis Stage = "synthesis"
	StageStore     Stage = "store"
)

const ttsBreakerName = "polly"

// ErrProviderUnavailable is returned when a request names a provider that
// was not configured
var ErrProviderUnavailable = errors.New("llm provider not configured")

// ErrSSMLTooLong is returned when translated markup would exceed
// Options.MaxSSMLChars
var ErrSSMLTooLong = errors.New("ssml exceeds the synthesis size limit")

// ProgressFunc is called as each stage starts. It may be nil.
type ProgressFunc func(stage Stage)

// AudioStore persists synthesized audio
type AudioStore interface {
	Save(data []byte, fileName, ext string) (storage.Path, error)
}

// Request describes one meditation to generate
type Request struct {
	Synth    speech.SynthConfig
	Provider llm.Provider // empty means the generator default
	Model    string       // empty means the provider default
}

// Result is a finished meditation
type Result struct {
	ID              string
	Provider        llm.Provider
	Model           string
	Script          string
	SSML            string
	PausePrimitives int
	Audio           *tts.Audio
	Path            storage.Path
}

// Options tune a Generator
type Options struct {
	DefaultProvider llm.Provider
	DefaultModel    string // applies to DefaultProvider only
	MaxFailures     int
	ResetTimeout    time.Duration
	MaxSSMLChars    int // 0 means no limit
}

// Generator runs meditation jobs. It is safe for concurrent use.
type Generator struct {
	providers   map[llm.Provider]llm.ScriptGenerator
	synthesizer tts.Synthesizer
	store       AudioStore
	opts        Options
	breakers    map[string]*resilience.CircuitBreaker
	logger      zerolog.Logger
}

// NewGenerator creates a Generator with one circuit breaker per provider and
// one for the synthesizer
func NewGenerator(providers map[llm.Provider]llm.ScriptGenerator, synth tts.Synthesizer, store AudioStore, opts Options) *Generator {
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = llm.ProviderBedrock
	}

	breakerLogger := observability.WithComponent("resilience")
	observer := resilience.Observer{
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
			breakerLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		OnFailure: observability.IncrementCircuitBreakerFailures,
	}

	breakers := make(map[string]*resilience.CircuitBreaker, len(providers)+1)
	for p := range providers {
		name := breakerName(p)
		breakers[name] = resilience.NewCircuitBreaker(name, opts.MaxFailures, opts.ResetTimeout, observer)
	}
	breakers[ttsBreakerName] = resilience.NewCircuitBreaker(ttsBreakerName, opts.MaxFailures, opts.ResetTimeout, observer)

	return &Generator{
		providers:   providers,
		synthesizer: synth,
		store:       store,
		opts:        opts,
		breakers:    breakers,
		logger:      observability.WithComponent("meditation"),
	}
}

func breakerName(p llm.Provider) string {
	return "llm_" + string(p)
}

// Providers returns the configured providers in name order
func (g *Generator) Providers() []llm.Provider {
	out := make([]llm.Provider, 0, len(g.providers))
	for p := range g.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Generate produces one meditation audio file
func (g *Generator) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if err := req.Synth.Validate(); err != nil {
		return nil, err
	}

	provider := req.Provider
	if provider == "" {
		provider = g.opts.DefaultProvider
	}
	scripts, ok := g.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	model := req.Model
	if model == "" {
		model = provider.DefaultModel()
		if provider == g.opts.DefaultProvider && g.opts.DefaultModel != "" {
			model = g.opts.DefaultModel
		}
	}
	if progress == nil {
		progress = func(Stage) {}
	}

	res := &Result{ID: uuid.New().String(), Provider: provider, Model: model}
	logger := g.logger.With().
		Str("correlation_id", res.ID).
		Str("provider", string(provider)).
		Str("model", model).
		Str("voice", req.Synth.Voice.String()).
		Logger()

	metrics := observability.NewJobMetrics(res.ID)
	metrics.RecordJobStart()
	success := false
	defer func() { metrics.RecordJobEnd(success) }()

	logger.Info().Str("duration_minutes", req.Synth.DurationMinutes).Msg("Meditation job started")

	// Script
	progress(StageScript)
	var raw string
	metrics.RecordLLMStart()
	err := g.breakers[breakerName(provider)].Execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = scripts.Generate(ctx, llm.ScriptRequest{Config: req.Synth, Model: model})
		return err
	})
	metrics.RecordLLMEnd(string(provider), err == nil)
	if err != nil {
		metrics.RecordError("llm", string(provider))
		logger.Error().Err(err).Msg("Script generation failed")
		return nil, fmt.Errorf("generate script: %w", err)
	}

	res.Script, err = prompt.ExtractScript(raw)
	if err != nil {
		metrics.RecordError("script_format", string(provider))
		logger.Error().Err(err).Int("chars", len(raw)).Msg("Model reply has no script body")
		return nil, fmt.Errorf("extract script: %w", err)
	}

	// Markup
	progress(StageMarkup)
	if n := ssml.ExpandedLength(res.Script, req.Synth.VoiceSpeed); g.opts.MaxSSMLChars > 0 && n > g.opts.MaxSSMLChars {
		metrics.RecordError("ssml_too_long", string(provider))
		logger.Error().Int("ssml_chars", n).Int("limit", g.opts.MaxSSMLChars).Msg("Script too long to synthesize")
		return nil, fmt.Errorf("%w: %d > %d characters", ErrSSMLTooLong, n, g.opts.MaxSSMLChars)
	}
	res.SSML = ssml.Document(ssml.ToSSML(res.Script, req.Synth.VoiceSpeed))
	res.PausePrimitives = ssml.CountPrimitives(res.SSML)
	metrics.RecordPausePrimitives(res.PausePrimitives)
	logger.Debug().
		Int("pause_primitives", res.PausePrimitives).
		Int("ssml_chars", len(res.SSML)).
		Msg("Script translated to SSML")

	// Synthesis
	progress(StageSynthesis)
	metrics.RecordTTSStart()
	err = g.breakers[ttsBreakerName].Execute(ctx, func(ctx context.Context) error {
		var err error
		res.Audio, err = g.synthesizer.Synthesize(ctx, tts.SynthesisRequest{
			Text:     res.SSML,
			TextType: tts.TextTypeSSML,
			VoiceID:  req.Synth.Voice.String(),
			Engine:   req.Synth.Engine,
		})
		return err
	})
	metrics.RecordTTSEnd(err == nil)
	if err != nil {
		metrics.RecordError("tts", ttsBreakerName)
		logger.Error().Err(err).Msg("Speech synthesis failed")
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	metrics.RecordAudioBytes(res.Audio.Format, len(res.Audio.Data))

	// Store
	progress(StageStore)
	res.Path, err = g.store.Save(res.Audio.Data, FileName(model, req.Synth, res.ID), tts.FileExtension(res.Audio.Format))
	if err != nil {
		metrics.RecordError("storage", "file_store")
		logger.Error().Err(err).Msg("Saving audio failed")
		return nil, fmt.Errorf("save audio: %w", err)
	}

	success = true
	logger.Info().Str("path", string(res.Path)).Msg("Meditation job completed")
	return res, nil
}

// FileName builds {model}_{voice}_{duration}m_{id prefix} for an output file
func FileName(model string, synth speech.SynthConfig, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%sm_%s", llm.SanitizeModelName(model), synth.Voice, synth.DurationMinutes, short)
}

// Checks returns one readiness check per breaker. A dependency is ready
// unless its breaker is open; no remote call is made.
func (g *Generator) Checks() map[string]observability.HealthCheckFunc {
	checks := make(map[string]observability.HealthCheckFunc, len(g.breakers))
	for name, cb := range g.breakers {
		cb := cb
		checks[name] = func(ctx context.Context) (bool, error) {
			state, requests, failures, rate := cb.GetStats()
			if state == resilience.StateOpen {
				return false, fmt.Errorf("circuit open after %d/%d failed requests (%.0f%%)", failures, requests, rate)
			}
			return true, nil
		}
	}
	return checks
}
