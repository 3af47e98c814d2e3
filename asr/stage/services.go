package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/johnsiilver/asrpipe/asr"
	"github.com/johnsiilver/asrpipe/internal/loop"
)

// Default latencies of the stubs.
const (
	TranscriptionDelay = 2 * time.Second
	NormalizationDelay = 1500 * time.Millisecond
	SentimentDelay     = 2 * time.Second
)

// Transcriber turns an audio identifier into a Transcript.
type Transcriber = Stage[asr.AudioRequest, asr.Transcript]

// Normalizer rewrites spoken numbers in a Transcript's text as digits.
type Normalizer = Stage[asr.Transcript, asr.NormalizedText]

// SentimentAnalyzer labels the sentiment of a normalized text.
type SentimentAnalyzer = Stage[asr.NormalizedText, asr.Sentiment]

// NewTranscriber returns the transcription stub. Every request hears asr.DefaultText unless
// WithScript() says otherwise.
func NewTranscriber(l *loop.Loop, opts ...Option) *Transcriber {
	o := options{text: asr.DefaultText, confidence: asr.DefaultConfidence}
	for _, opt := range opts {
		opt(&o)
	}
	text, confidence := o.text, o.confidence

	proc := func(ctx context.Context, id asr.AudioRequest) (asr.Transcript, error) {
		return asr.Transcript{ID: id, Text: text, Confidence: confidence}, nil
	}
	msgs := Messages[asr.AudioRequest, asr.Transcript]{
		Started: func(id asr.AudioRequest) string {
			return fmt.Sprintf("ASR System: Starting transcription for audio %s...", id)
		},
		Completed: func(id asr.AudioRequest, _ asr.Transcript) string {
			return fmt.Sprintf("ASR System: Raw transcription complete for %s.", id)
		},
		Failed: func(id asr.AudioRequest, sf *asr.StageFailure) string {
			return fmt.Sprintf("ASR System: Transcription failed for %s: %s", id, sf.Message())
		},
	}
	return NewStage[asr.AudioRequest, asr.Transcript](l, asr.StageA, proc, TranscriptionDelay, msgs, opts...)
}

// NewNormalizer returns the normalization stub, which applies asr.Normalize().
func NewNormalizer(l *loop.Loop, opts ...Option) *Normalizer {
	proc := func(ctx context.Context, t asr.Transcript) (asr.NormalizedText, error) {
		return asr.Normalize(t.Text), nil
	}
	msgs := Messages[asr.Transcript, asr.NormalizedText]{
		Started: func(t asr.Transcript) string {
			return fmt.Sprintf("Postprocessor: Normalizing text: %q", asr.Summary(t.Text))
		},
		Completed: func(asr.Transcript, asr.NormalizedText) string {
			return "Postprocessor: Text normalization complete."
		},
		Failed: func(_ asr.Transcript, sf *asr.StageFailure) string {
			return fmt.Sprintf("Postprocessor: Text normalization failed: %s", sf.Message())
		},
	}
	return NewStage[asr.Transcript, asr.NormalizedText](l, asr.StageB, proc, NormalizationDelay, msgs, opts...)
}

// NewSentimentAnalyzer returns the sentiment stub. It answers asr.Neutral for every text.
func NewSentimentAnalyzer(l *loop.Loop, opts ...Option) *SentimentAnalyzer {
	proc := func(ctx context.Context, text asr.NormalizedText) (asr.Sentiment, error) {
		return asr.Neutral, nil
	}
	msgs := Messages[asr.NormalizedText, asr.Sentiment]{
		Started: func(text asr.NormalizedText) string {
			return fmt.Sprintf("Sentiment Analysis: Analyzing: %q", asr.Summary(string(text)))
		},
		Completed: func(asr.NormalizedText, asr.Sentiment) string {
			return "Sentiment Analysis: Analysis complete."
		},
		Failed: func(_ asr.NormalizedText, sf *asr.StageFailure) string {
			return fmt.Sprintf("Sentiment Analysis: Analysis failed: %s", sf.Message())
		},
	}
	return NewStage[asr.NormalizedText, asr.Sentiment](l, asr.StageC, proc, SentimentDelay, msgs, opts...)
}
