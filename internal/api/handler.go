package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/verydemure/meditation-gateway/internal/llm"
	"github.com/verydemure/meditation-gateway/internal/meditation"
	"github.com/verydemure/meditation-gateway/internal/observability"
	"github.com/verydemure/meditation-gateway/internal/resilience"
	"github.com/verydemure/meditation-gateway/internal/speech"
	"github.com/verydemure/meditation-gateway/internal/ssml"
	"github.com/verydemure/meditation-gateway/internal/tts"
)

const maxBodyBytes = 1 << 20

// MeditationGenerator runs one meditation job
type MeditationGenerator interface {
	Generate(ctx context.Context, req meditation.Request, progress meditation.ProgressFunc) (*meditation.Result, error)
}

// MeditationRequest is the JSON body of a generation request. Empty fields
// take the server defaults.
type MeditationRequest struct {
	Engine          string `json:"engine,omitempty"`
	Voice           string `json:"voice,omitempty"`
	VoiceSpeed      string `json:"voice_speed,omitempty"`
	DurationMinutes string `json:"duration_minutes,omitempty"`
	Provider        string `json:"provider,omitempty"`
	Model           string `json:"model,omitempty"`
}

// SSMLRequest asks for the markup of a script without synthesizing it
type SSMLRequest struct {
	Text       string `json:"text"`
	VoiceSpeed string `json:"voice_speed,omitempty"`
}

// SSMLResponse is the translated script
type SSMLResponse struct {
	SSML            string `json:"ssml"`
	PausePrimitives int    `json:"pause_primitives"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the meditation API
type Handler struct {
	generator    MeditationGenerator
	defaults     speech.SynthConfig
	maxSSMLChars int
	logger       zerolog.Logger
}

// NewHandler creates a Handler; defaults fill empty request fields and
// maxSSMLChars bounds the markup the preview endpoint will build
func NewHandler(generator MeditationGenerator, defaults speech.SynthConfig, maxSSMLChars int) *Handler {
	return &Handler{
		generator:    generator,
		defaults:     defaults,
		maxSSMLChars: maxSSMLChars,
		logger:       observability.WithComponent("api"),
	}
}

// Register adds the API routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/meditations", h.handleGenerate)
	mux.HandleFunc("GET /v1/meditations/stream", h.handleStream)
	mux.HandleFunc("POST /v1/ssml", h.handleSSML)
}

// toRequest applies defaults and validates the voice and provider
func (h *Handler) toRequest(mr MeditationRequest) (meditation.Request, error) {
	synth, err := speech.NewSynthConfig(
		firstNonEmpty(mr.Engine, h.defaults.Engine),
		firstNonEmpty(mr.Voice, h.defaults.Voice.String()),
		firstNonEmpty(mr.VoiceSpeed, h.defaults.VoiceSpeed),
		firstNonEmpty(mr.DurationMinutes, h.defaults.DurationMinutes),
	)
	if err != nil {
		return meditation.Request{}, err
	}

	req := meditation.Request{Synth: synth, Model: mr.Model}
	if mr.Provider != "" {
		if req.Provider, err = llm.ParseProvider(mr.Provider); err != nil {
			return meditation.Request{}, err
		}
	}
	return req, nil
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var mr MeditationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&mr); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	req, err := h.toRequest(mr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.generator.Generate(r.Context(), req, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Meditation request failed")
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", tts.ContentType(res.Audio.Format))
	w.Header().Set("X-Meditation-ID", res.ID)
	w.Header().Set("X-Meditation-Path", string(res.Path))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Audio.Data)
}

func (h *Handler) handleSSML(w http.ResponseWriter, r *http.Request) {
	var req SSMLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	rate := firstNonEmpty(req.VoiceSpeed, h.defaults.VoiceSpeed)
	if n := ssml.ExpandedLength(req.Text, rate); n > h.maxSSMLChars {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("ssml would be %d characters, limit is %d", n, h.maxSSMLChars),
		})
		return
	}

	doc := ssml.Document(ssml.ToSSML(req.Text, rate))
	writeJSON(w, http.StatusOK, SSMLResponse{SSML: doc, PausePrimitives: ssml.CountPrimitives(doc)})
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, speech.ErrInvalidVoice),
		errors.Is(err, speech.ErrInvalidDuration),
		errors.Is(err, llm.ErrUnknownProvider),
		errors.Is(err, meditation.ErrProviderUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
