// Package asr holds the data that flows through the speech pipeline: the audio being asked for, the
// transcript the recognizer produces, the normalized text and the sentiment of that text.
package asr

import (
	"fmt"
	"regexp"
	"time"
)

// AudioRequest names a unit of input audio. Any value is accepted.
type AudioRequest string

// Transcript is the output of the transcription stage.
type Transcript struct {
	ID         AudioRequest
	Text       string
	Confidence float64
}

// NormalizedText is a transcript's text after spoken numbers were rewritten to digits.
type NormalizedText string

// Sentiment is the label the sentiment stage assigns to a text.
type Sentiment string

const (
	Neutral  Sentiment = "neutral"
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
)

// DefaultText is what the stub recognizer hears in every audio file.
const DefaultText = "hello world this is a test it cost five dollars and was great"

// DefaultConfidence is the confidence the stub recognizer reports.
const DefaultConfidence = 0.93

var fiveRE = regexp.MustCompile(`(?i)\bfive\b`)

// Normalize replaces every standalone "five", in any casing, with "5". All other bytes are kept.
func Normalize(text string) NormalizedText {
	return NormalizedText(fiveRE.ReplaceAllLiteralString(text, "5"))
}

// Summary shortens s for progress output: the first 30 characters followed by "...".
func Summary(s string) string {
	const n = 30
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r) + "..."
}

// Outcome is the terminal result of one pipeline run. Exactly one of Failure == nil (success) or
// Failure != nil holds.
type Outcome struct {
	RunID string
	Audio AudioRequest
	// Style is the orchestration style that produced this Outcome.
	Style string

	Transcript Transcript
	Text       NormalizedText
	Sentiment  Sentiment

	Failure *StageFailure

	// Elapsed is loop time from the start of the run to its terminal state.
	Elapsed time.Duration
	// States is every state the run passed through, in order.
	States []string
}

// OK reports if the run succeeded.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Err returns the failure as an error, or nil.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

func (o Outcome) String() string {
	if o.Failure != nil {
		return fmt.Sprintf("%s: failed in %s: %s", o.Audio, o.Failure.Stage, o.Failure.Message())
	}
	return fmt.Sprintf("%s: %q (%s)", o.Audio, string(o.Text), o.Sentiment)
}
