package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verydemure/meditation-gateway/internal/llm"
	"github.com/verydemure/meditation-gateway/internal/meditation"
	"github.com/verydemure/meditation-gateway/internal/resilience"
	"github.com/verydemure/meditation-gateway/internal/speech"
	"github.com/verydemure/meditation-gateway/internal/ssml"
	"github.com/verydemure/meditation-gateway/internal/tts"
)

type fakeGenerator struct {
	mu   sync.Mutex
	err  error
	reqs []meditation.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req meditation.Request, progress meditation.ProgressFunc) (*meditation.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if progress != nil {
		for _, s := range []meditation.Stage{meditation.StageScript, meditation.StageMarkup, meditation.StageSynthesis, meditation.StageStore} {
			progress(s)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &meditation.Result{
		ID:    "job-1",
		Audio: &tts.Audio{Data: []byte("ID3audio"), Format: "mp3"},
		Path:  "output/job-1.mp3",
	}, nil
}

func (f *fakeGenerator) lastRequest(t *testing.T) meditation.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.reqs)
	return f.reqs[len(f.reqs)-1]
}

const testMaxSSMLChars = 100000

func defaults() speech.SynthConfig {
	return speech.SynthConfig{Engine: "neural", Voice: speech.VoiceMatthew, VoiceSpeed: "slow", DurationMinutes: "10"}
}

func newTestServer(t *testing.T, gen *fakeGenerator) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(gen, defaults(), testMaxSSMLChars).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGenerate_ReturnsAudio(t *testing.T) {
	gen := &fakeGenerator{}
	srv := newTestServer(t, gen)

	resp := post(t, srv.URL+"/v1/meditations", `{"voice":"Ruth","duration_minutes":"5","provider":"openai","model":"gpt-4o"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "job-1", resp.Header.Get("X-Meditation-ID"))
	assert.Equal(t, "output/job-1.mp3", resp.Header.Get("X-Meditation-Path"))

	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	assert.Equal(t, "ID3audio", body.String())

	req := gen.lastRequest(t)
	assert.Equal(t, speech.SynthConfig{Engine: "neural", Voice: speech.VoiceRuth, VoiceSpeed: "slow", DurationMinutes: "5"}, req.Synth)
	assert.Equal(t, llm.ProviderOpenAI, req.Provider)
	assert.Equal(t, "gpt-4o", req.Model)
}

func TestGenerate_DefaultsApplied(t *testing.T) {
	gen := &fakeGenerator{}
	srv := newTestServer(t, gen)

	resp := post(t, srv.URL+"/v1/meditations", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := gen.lastRequest(t)
	assert.Equal(t, defaults(), req.Synth)
	assert.Equal(t, llm.Provider(""), req.Provider)
}

func TestGenerate_BadRequests(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid voice", `{"voice":"Darren"}`, "unfortunately Darren is not one of [Matthew Amy Ruth]"},
		{"unknown provider", `{"provider":"gemini"}`, "unknown llm provider"},
		{"invalid duration", `{"duration_minutes":"5/10"}`, "duration_minutes must be a non-negative integer"},
		{"malformed json", `{"voice":`, "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/meditations", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body.Error, tt.want)
		})
	}
}

func TestGenerate_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"circuit open", fmt.Errorf("synthesize speech: polly: %w", resilience.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"provider missing", fmt.Errorf("%w: openai", meditation.ErrProviderUnavailable), http.StatusBadRequest},
		{"bad duration", fmt.Errorf("%w, got %q", speech.ErrInvalidDuration, "x"), http.StatusBadRequest},
		{"timeout", fmt.Errorf("generate script: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", errors.New("polly synthesize: ThrottlingException"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeGenerator{err: tt.err})
			resp := post(t, srv.URL+"/v1/meditations", `{}`)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGenerate_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})

	resp, err := http.Get(srv.URL + "/v1/meditations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSSML(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})

	resp := post(t, srv.URL+"/v1/ssml", `{"text":"[PAUSE 20s]\nWelcome\n[PAUSE 1m]","voice_speed":"medium"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body SSMLResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 8, body.PausePrimitives)
	assert.Equal(t,
		`<speak><prosody rate="medium">`+strings.Repeat(ssml.PausePrimitive, 2)+"\nWelcome\n"+strings.Repeat(ssml.PausePrimitive, 6)+`</prosody></speak>`,
		body.SSML,
	)
}

func TestSSML_OutputLimit(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})

	for _, text := range []string{"[PAUSE 999999m]", "[PAUSE 999999999m]"} {
		resp := post(t, srv.URL+"/v1/ssml", `{"text":"`+text+`"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, text)

		var body errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body.Error, "limit is 100000")
	}
}

func TestSSML_AtLimit(t *testing.T) {
	mux := http.NewServeMux()
	text := "[PAUSE 10m]"
	limit := ssml.ExpandedLength(text, "slow")
	NewHandler(&fakeGenerator{}, defaults(), limit).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ssml", strings.NewReader(`{"text":"`+text+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body SSMLResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.SSML, limit)
	assert.Equal(t, 60, body.PausePrimitives)
}

func TestSSML_DefaultRate(t *testing.T) {
	srv := newTestServer(t, &fakeGenerator{})

	resp := post(t, srv.URL+"/v1/ssml", `{"text":"Hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body SSMLResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, `<speak><prosody rate="slow">Hello</prosody></speak>`, body.SSML)
	assert.Zero(t, body.PausePrimitives)
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/meditations/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStream(t *testing.T) {
	gen := &fakeGenerator{}
	conn := dialStream(t, newTestServer(t, gen))

	require.NoError(t, conn.WriteJSON(MeditationRequest{Voice: "Amy", VoiceSpeed: "x-slow"}))

	var stages []meditation.Stage
	for i := 0; i < 4; i++ {
		var ev StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "stage", ev.Event)
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []meditation.Stage{"script", "markup", "synthesis", "store"}, stages)

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, "ID3audio", string(data))

	var done StreamEvent
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, StreamEvent{Event: "done", ID: "job-1", Path: "output/job-1.mp3"}, done)

	req := gen.lastRequest(t)
	assert.Equal(t, speech.VoiceAmy, req.Synth.Voice)
	assert.Equal(t, "x-slow", req.Synth.VoiceSpeed)
}

func TestStream_InvalidVoice(t *testing.T) {
	conn := dialStream(t, newTestServer(t, &fakeGenerator{}))

	require.NoError(t, conn.WriteJSON(MeditationRequest{Voice: "Darren"}))

	var ev StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Event)
	assert.Contains(t, ev.Error, "Darren")
}

func TestStream_GenerationError(t *testing.T) {
	conn := dialStream(t, newTestServer(t, &fakeGenerator{err: errors.New("bedrock invoke: AccessDenied")}))

	require.NoError(t, conn.WriteJSON(MeditationRequest{}))

	var ev StreamEvent
	for {
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Event != "stage" {
			break
		}
	}
	assert.Equal(t, "error", ev.Event)
	assert.Contains(t, ev.Error, "AccessDenied")
}
