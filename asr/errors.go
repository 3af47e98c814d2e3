package asr

import (
	"errors"
	"fmt"
	"strings"
)

// StageID identifies one of the pipeline stages.
type StageID int8

const (
	// StageA is transcription.
	StageA StageID = iota + 1
	// StageB is text normalization.
	StageB
	// StageC is sentiment analysis.
	StageC
)

// Stages lists every stage in pipeline order.
var Stages = []StageID{StageA, StageB, StageC}

func (s StageID) String() string {
	switch s {
	case StageA:
		return "Stage A"
	case StageB:
		return "Stage B"
	case StageC:
		return "Stage C"
	}
	return fmt.Sprintf("StageID(%d)", int8(s))
}

// Name is the lower case name of the work the stage does, used in config keys and log fields.
func (s StageID) Name() string {
	switch s {
	case StageA:
		return "transcription"
	case StageB:
		return "normalization"
	case StageC:
		return "sentiment"
	}
	return ""
}

// ParseStageID accepts "a", "stage a", "transcription" and the like, in any casing.
func ParseStageID(s string) (StageID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "stage a", "transcription":
		return StageA, nil
	case "b", "stage b", "normalization":
		return StageB, nil
	case "c", "stage c", "sentiment":
		return StageC, nil
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}

// These are the failures a stage can simulate. None of them happen unless configured.
var (
	ErrTimeout      = errors.New("network timeout")
	ErrInvalidInput = errors.New("invalid input format")
	ErrUnavailable  = errors.New("service unavailable")
)

// ParseFailure maps a configured failure name onto one of the sentinel errors. Unknown names
// become an error with that text.
func ParseFailure(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil
	case "timeout":
		return ErrTimeout
	case "invalid", "invalid_input":
		return ErrInvalidInput
	case "unavailable":
		return ErrUnavailable
	}
	return errors.New(s)
}

// StageFailure is the only kind of error a pipeline run ends with. It records which stage failed.
type StageFailure struct {
	Stage StageID
	Err   error
}

// Message is the human-readable reason without the stage.
func (s *StageFailure) Message() string {
	if s.Err == nil {
		return "unknown error"
	}
	return s.Err.Error()
}

func (s *StageFailure) Error() string {
	return fmt.Sprintf("%s (%s) failed: %s", s.Stage, s.Stage.Name(), s.Message())
}

func (s *StageFailure) Unwrap() error {
	return s.Err
}

// AsStageFailure returns err as a *StageFailure. An err that is not one is attributed to stage.
func AsStageFailure(err error, stage StageID) *StageFailure {
	if err == nil {
		return nil
	}
	var sf *StageFailure
	if errors.As(err, &sf) {
		return sf
	}
	return &StageFailure{Stage: stage, Err: err}
}
