package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnsiilver/asrpipe/asr"
	"github.com/johnsiilver/asrpipe/internal/logger"
)

// State is where a single run is in the pipeline.
type State int8

const (
	Idle State = iota
	AwaitingA
	AwaitingB
	AwaitingC
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingA:
		return "AwaitingA"
	case AwaitingB:
		return "AwaitingB"
	case AwaitingC:
		return "AwaitingC"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// stage is the stage a run in this State is waiting on.
func (s State) stage() asr.StageID {
	switch s {
	case AwaitingA:
		return asr.StageA
	case AwaitingB:
		return asr.StageB
	case AwaitingC:
		return asr.StageC
	}
	return 0
}

// transitions are the only moves a run may make. Done and Failed are terminal.
var transitions = map[State][]State{
	Idle:      {AwaitingA},
	AwaitingA: {AwaitingB, Failed},
	AwaitingB: {AwaitingC, Failed},
	AwaitingC: {Done, Failed},
}

func canMove(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// run is one trip of one AudioRequest through the pipeline. It owns every value the trip produces
// and does the logging that is the same no matter which style drives it.
type run struct {
	ctx   context.Context
	span  trace.Span
	log   *logrus.Entry
	start time.Duration

	state State
	out   asr.Outcome
	p     *Pipeline
}

func (p *Pipeline) newRun(ctx context.Context, id asr.AudioRequest, style Style) *run {
	runID := p.newID()

	ctx, span := p.tracer.Start(
		ctx,
		"asr.pipeline",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("audio", string(id)),
			attribute.String("style", style.String()),
		),
	)
	log := p.log.WithRun(runID, string(id), style.String())

	r := &run{
		ctx:   logger.NewContext(ctx, log),
		span:  span,
		log:   log,
		start: p.loop.Elapsed(),
		p:     p,
		out: asr.Outcome{
			RunID:  runID,
			Audio:  id,
			Style:  style.String(),
			States: []string{Idle.String()},
		},
	}
	return r
}

func (r *run) move(to State) {
	if !canMove(r.state, to) {
		panic(fmt.Sprintf("pipeline run %s: invalid transition %s -> %s", r.out.RunID, r.state, to))
	}
	r.state = to
	r.out.States = append(r.out.States, to.String())
	r.span.AddEvent("State " + to.String())
}

func (r *run) step() *logrus.Entry {
	return r.log.WithFields(logrus.Fields{
		logger.FieldEvent: logger.EventStep,
		logger.FieldAt:    r.p.loop.Elapsed(),
	})
}

func (r *run) begin() {
	r.step().Info(fmt.Sprintf("Starting pipeline for audio: %s...", r.out.Audio))
	r.move(AwaitingA)
}

func (r *run) transcribed(t asr.Transcript) {
	r.out.Transcript = t
	r.step().Info(fmt.Sprintf("Step 1: Raw Transcription received: %s", t.Text))
	r.move(AwaitingB)
}

func (r *run) normalized(text asr.NormalizedText) {
	r.out.Text = text
	r.step().Info(fmt.Sprintf("Step 2: Post-processed text: %s", text))
	r.move(AwaitingC)
}

func (r *run) analyzed(s asr.Sentiment) asr.Outcome {
	r.out.Sentiment = s
	r.step().Info(fmt.Sprintf("Step 3: Sentiment analyzed: %s", s))
	r.move(Done)
	r.step().Info(fmt.Sprintf("Pipeline complete for %s.", r.out.Audio))
	return r.finish()
}

// fail ends the run with err. An err that is not an *asr.StageFailure is blamed on the stage the
// run was waiting on.
func (r *run) fail(err error) asr.Outcome {
	sf := asr.AsStageFailure(err, r.state.stage())
	r.move(Failed)

	r.out.Failure = sf
	r.span.RecordError(sf)
	r.span.SetStatus(codes.Error, sf.Message())
	r.step().WithField("error", sf.Message()).Error(
		fmt.Sprintf("Error in pipeline for %s: %s failed: %s", r.out.Audio, sf.Stage, sf.Message()),
	)
	return r.finish()
}

func (r *run) finish() asr.Outcome {
	r.out.Elapsed = r.p.loop.Elapsed() - r.start
	r.span.End()
	return r.out
}
