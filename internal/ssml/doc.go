// Package ssml turns meditation scripts into Polly SSML.
//
// Scripts mark silences with duration markers of the form [PAUSE 20s] or
// [PAUSE 1m]. Polly caps a single <break> at ten seconds, so each marker is
// expanded into a run of ten-second breaks and the whole script is wrapped
// in a rate-controlled <prosody> element. Remainders below ten seconds are
// dropped.
package ssml
