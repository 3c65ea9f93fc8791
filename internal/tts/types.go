package tts

import "context"

// TextTypeSSML marks SynthesisRequest text as SSML markup
const TextTypeSSML = "ssml"

// Audio is a synthesized meditation
type Audio struct {
	Data   []byte
	Format string // Polly output format: mp3, ogg_vorbis or pcm
}

// SynthesisRequest carries the markup and voice selection for one call
type SynthesisRequest struct {
	Text     string
	TextType string // "ssml" or "text"; empty means ssml
	VoiceID  string
	Engine   string
}

// Synthesizer defines the interface for a Text-to-Speech backend
type Synthesizer interface {
	// Synthesize converts text to a complete audio file
	Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error)
}

// FileExtension maps an output format to its file extension
func FileExtension(format string) string {
	switch format {
	case "ogg_vorbis":
		return "ogg"
	case "":
		return "mp3"
	}
	return format
}

// ContentType maps an output format to its MIME type
func ContentType(format string) string {
	switch format {
	case "ogg_vorbis":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	}
	return "audio/mpeg"
}
