// Package prompt builds the language model prompt for a meditation script and
// pulls the script body back out of the model's reply.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/verydemure/meditation-gateway/internal/speech"
)

// ScriptDelimiter marks the start and end of the meditation body in the
// model's reply.
const ScriptDelimiter = "[SCRIPT]"

// ErrNoScript is returned when a reply carries no ScriptDelimiter.
var ErrNoScript = errors.New("response does not contain a " + ScriptDelimiter + " marker")

// Generate returns the prompt for a guided meditation matching cfg.
func Generate(cfg speech.SynthConfig) string {
	return fmt.Sprintf(`
Write the text for a guided mindfulness meditation session which should last
%s minutes. Do not mention this duration in the actual script.

There should be some pauses that last longer than 30 seconds and some that are longer than a minute.
Indicate these pauses like this:
[PAUSE 20s]

The generated script should also include affirmations.

%s
The start of script and end of script markers should be '%s'
`, cfg.DurationMinutes, EngineCaveat(cfg), ScriptDelimiter)
}

// EngineCaveat tells the model to leave markup alone. The prosody envelope is
// added after generation, and generative voices reject nested <voice> and
// <prosody> tags.
func EngineCaveat(cfg speech.SynthConfig) string {
	if cfg.Engine == "generative" {
		return "Do not include <voice> or <prosody> SSML tags as they are not yet supported by the generative voices."
	}
	return "Do not include any SSML tags such as <speak>, <voice> or <prosody>; plain text and pause markers only."
}

// ExtractScript returns the text between the first and second ScriptDelimiter,
// or everything after the first one when the closing marker is missing.
func ExtractScript(response string) (string, error) {
	parts := strings.SplitN(response, ScriptDelimiter, 3)
	if len(parts) < 2 {
		return "", ErrNoScript
	}
	return parts[1], nil
}
