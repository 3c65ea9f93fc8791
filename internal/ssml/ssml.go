package ssml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PausePrimitive is the longest single break Polly accepts.
	PausePrimitive = `<break time="10s" />`

	// PrimitiveSeconds is the silence represented by one PausePrimitive.
	PrimitiveSeconds = 10
)

const maxInt = int(^uint(0) >> 1)

// pauseMarker matches duration markers such as [PAUSE 20s] or [pause 1M].
var pauseMarker = regexp.MustCompile(`(?i)\[PAUSE (\d+)([ms])\]`)

// ExpandPauseMarker converts a single [PAUSE N<unit>] marker into a run of
// pause primitives covering floor(seconds/10) of silence. Anything that does
// not parse falls back to one primitive.
func ExpandPauseMarker(marker string) string {
	return strings.Repeat(PausePrimitive, primitiveCount(marker))
}

// primitiveCount is the number of primitives marker expands to. The count
// always fits in a single string.
func primitiveCount(marker string) int {
	seconds, ok := markerSeconds(marker)
	if !ok {
		return 1
	}
	count := seconds / PrimitiveSeconds
	if count > maxInt/len(PausePrimitive) {
		return 1
	}
	return count
}

// markerSeconds returns the silence requested by marker in whole seconds.
func markerSeconds(marker string) (int, bool) {
	groups := pauseMarker.FindStringSubmatch(marker)
	if groups == nil || groups[0] != marker {
		return 0, false
	}

	n, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, false
	}

	multiplier := 1
	if strings.EqualFold(groups[2], "m") {
		multiplier = 60
	}
	if n > maxInt/multiplier {
		return 0, false
	}
	return n * multiplier, true
}

// ExpandPauseMarkers replaces every duration marker in text, left to right.
// Text outside the markers, line breaks included, is left untouched.
func ExpandPauseMarkers(text string) string {
	return pauseMarker.ReplaceAllStringFunc(text, ExpandPauseMarker)
}

// Envelope wraps text in a prosody element. The rate is used verbatim.
func Envelope(text, rate string) string {
	return fmt.Sprintf(`<prosody rate="%s">%s</prosody>`, rate, text)
}

// ToSSML expands the pause markers in script and wraps the result in the
// prosody envelope.
func ToSSML(script, rate string) string {
	return Envelope(ExpandPauseMarkers(script), rate)
}

// Document nests an envelope inside the <speak> root expected by Polly.
func Document(envelope string) string {
	return "<speak>" + envelope + "</speak>"
}

// ExpandedLength returns len(Document(ToSSML(text, rate))) without building
// the markup, so callers can bound the output first. The result saturates at
// the largest int.
func ExpandedLength(text, rate string) int {
	n := len(Document(Envelope("", rate)))
	prev := 0
	for _, loc := range pauseMarker.FindAllStringIndex(text, -1) {
		n = addSat(n, loc[0]-prev)
		n = addSat(n, primitiveCount(text[loc[0]:loc[1]])*len(PausePrimitive))
		prev = loc[1]
	}
	return addSat(n, len(text)-prev)
}

func addSat(a, b int) int {
	if a > maxInt-b {
		return maxInt
	}
	return a + b
}

// CountPrimitives reports how many pause primitives markup contains.
func CountPrimitives(markup string) int {
	return strings.Count(markup, PausePrimitive)
}
