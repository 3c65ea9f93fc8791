// Package speech holds the settings shared by script generation and speech
// synthesis.
package speech

import (
	"errors"
	"fmt"
	"strconv"
)

// Voice is a Polly voice identifier.
type Voice string

const (
	VoiceMatthew Voice = "Matthew"
	VoiceAmy     Voice = "Amy"
	VoiceRuth    Voice = "Ruth"
)

// ValidVoices lists the voices a SynthConfig accepts, in display order.
var ValidVoices = []Voice{VoiceMatthew, VoiceAmy, VoiceRuth}

// Defaults applied to empty SynthConfig fields.
const (
	DefaultEngine          = "neural"
	DefaultVoice           = VoiceMatthew
	DefaultVoiceSpeed      = "slow"
	DefaultDurationMinutes = "1"
)

// ErrInvalidVoice is matched by every ValidationError raised for a voice.
var ErrInvalidVoice = errors.New("invalid voice")

// ErrInvalidDuration is returned when DurationMinutes is not a non-negative
// integer.
var ErrInvalidDuration = errors.New("duration_minutes must be a non-negative integer")

// ValidationError reports a SynthConfig field outside its allowed values.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []Voice
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unfortunately %s is not one of %v", e.Value, e.Allowed)
}

// Is lets errors.Is match ErrInvalidVoice.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidVoice && e.Field == "voice"
}

// SynthConfig carries the engine, voice, speaking rate and requested length
// of a meditation. Build it with NewSynthConfig; the zero value is not valid.
type SynthConfig struct {
	Engine          string `json:"engine"`
	Voice           Voice  `json:"voice"`
	VoiceSpeed      string `json:"voice_speed"`
	DurationMinutes string `json:"duration_minutes"`
}

// DefaultSynthConfig returns the neural Matthew voice at a slow rate for a
// one minute session.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		Engine:          DefaultEngine,
		Voice:           DefaultVoice,
		VoiceSpeed:      DefaultVoiceSpeed,
		DurationMinutes: DefaultDurationMinutes,
	}
}

// NewSynthConfig validates voice and duration and returns the config. Empty
// arguments take the package defaults. The speed is not checked.
func NewSynthConfig(engine, voice, voiceSpeed, durationMinutes string) (SynthConfig, error) {
	cfg := DefaultSynthConfig()
	if engine != "" {
		cfg.Engine = engine
	}
	if voice != "" {
		cfg.Voice = Voice(voice)
	}
	if voiceSpeed != "" {
		cfg.VoiceSpeed = voiceSpeed
	}
	if durationMinutes != "" {
		cfg.DurationMinutes = durationMinutes
	}

	if err := cfg.Validate(); err != nil {
		return SynthConfig{}, err
	}
	return cfg, nil
}

// Validate checks the voice against ValidVoices and that DurationMinutes is
// a plain decimal integer.
func (c SynthConfig) Validate() error {
	if !c.Voice.Valid() {
		return &ValidationError{Field: "voice", Value: string(c.Voice), Allowed: ValidVoices}
	}
	return ValidateDuration(c.DurationMinutes)
}

// ValidateDuration reports whether minutes is a non-negative integer with no
// sign, e.g. "10".
func ValidateDuration(minutes string) error {
	if _, err := strconv.ParseUint(minutes, 10, 32); err != nil {
		return fmt.Errorf("%w, got %q", ErrInvalidDuration, minutes)
	}
	return nil
}

// Valid reports whether v is one of ValidVoices.
func (v Voice) Valid() bool {
	for _, allowed := range ValidVoices {
		if v == allowed {
			return true
		}
	}
	return false
}

func (v Voice) String() string {
	return string(v)
}
