/*
Package pipeline runs an AudioRequest through transcription, normalization and sentiment analysis, in
that order, and reports one terminal asr.Outcome per run.

The same pipeline can be driven in three styles. They differ only in how the code reads:

	Callback: Each stage is started with an on-done handler and that handler starts the next stage.
	          Every handler checks its own error.
	Promise:  Each stage returns a Promise. The steps are chained with promise.Then() and a single
	          Catch() at the end sees the first failure.
	Await:    The run is one straight-line function. Each stage is awaited in turn, and one error
	          check around the whole sequence sees the first failure.

	- A stage only starts once the one before it has produced its result. No stage runs twice in a run.
	- The first failure ends the run. Later stages are not started and the Outcome names the stage
	  that failed.
	- A failed run never affects any other run.
	- For the same stages, all three styles write the same progress lines in the same order and
	  produce the same Outcome.

Example:

	l := loop.New(loop.NewVirtualClock(time.Time{}))
	p := pipeline.New(l, stage.NewTranscriber(l), stage.NewNormalizer(l), stage.NewSentimentAnalyzer(l))

	p.Start(ctx, pipeline.Await, "meeting_async_005", func(o asr.Outcome) {
		fmt.Println(o)
	})
	if err := l.Run(ctx); err != nil {
		...
	}
*/
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnsiilver/asrpipe/asr"
	"github.com/johnsiilver/asrpipe/asr/stage"
	"github.com/johnsiilver/asrpipe/general/async"
	"github.com/johnsiilver/asrpipe/general/promise"
	"github.com/johnsiilver/asrpipe/internal/logger"
	"github.com/johnsiilver/asrpipe/internal/loop"
)

const tracerName = "github.com/johnsiilver/asrpipe/asr/pipeline"

// Style is a way of writing the orchestration.
type Style int8

const (
	Callback Style = iota + 1
	Promise
	Await
)

// Styles lists every Style.
var Styles = []Style{Callback, Promise, Await}

func (s Style) String() string {
	switch s {
	case Callback:
		return "callback"
	case Promise:
		return "promise"
	case Await:
		return "await"
	}
	return fmt.Sprintf("Style(%d)", int8(s))
}

// ParseStyle is the reverse of Style.String(). "async" is accepted for Await.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "callback", "callbacks":
		return Callback, nil
	case "promise", "promises":
		return Promise, nil
	case "await", "async":
		return Await, nil
	}
	return 0, fmt.Errorf("unknown style %q", s)
}

// Pipeline is the orchestrator for the three stages.
type Pipeline struct {
	loop       *loop.Loop
	transcribe *stage.Transcriber
	normalize  *stage.Normalizer
	analyze    *stage.SentimentAnalyzer

	log    *logger.Logger
	tracer trace.Tracer
	newID  func() string
}

// Option is an optional argument to New().
type Option func(p *Pipeline)

// WithLogger sets where the orchestrator's progress lines go.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithTracer sets the tracer run spans are started with.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// WithIDs replaces the uuid run ids, which is useful for golden output.
func WithIDs(f func() string) Option {
	return func(p *Pipeline) {
		p.newID = f
	}
}

// New creates a new Pipeline. The stages must have been built with l.
func New(l *loop.Loop, t *stage.Transcriber, n *stage.Normalizer, s *stage.SentimentAnalyzer, options ...Option) *Pipeline {
	if l == nil || t == nil || n == nil || s == nil {
		panic("pipeline.New cannot be called with a nil Loop or stage")
	}

	p := &Pipeline{
		loop:       l,
		transcribe: t,
		normalize:  n,
		analyze:    s,
		log:        logger.Discard(),
		tracer:     otel.Tracer(tracerName),
		newID:      func() string { return uuid.New().String() },
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Transcriber returns Stage A.
func (p *Pipeline) Transcriber() *stage.Transcriber { return p.transcribe }

// Normalizer returns Stage B.
func (p *Pipeline) Normalizer() *stage.Normalizer { return p.normalize }

// SentimentAnalyzer returns Stage C.
func (p *Pipeline) SentimentAnalyzer() *stage.SentimentAnalyzer { return p.analyze }

// RunCallback starts a run written with nested on-done handlers. done receives the Outcome.
func (p *Pipeline) RunCallback(ctx context.Context, id asr.AudioRequest, done func(asr.Outcome)) {
	r := p.newRun(ctx, id, Callback)
	r.begin()

	p.transcribe.Invoke(r.ctx, id, func(t asr.Transcript, err error) {
		if err != nil {
			done(r.fail(err))
			return
		}
		r.transcribed(t)

		p.normalize.Invoke(r.ctx, t, func(text asr.NormalizedText, err error) {
			if err != nil {
				done(r.fail(err))
				return
			}
			r.normalized(text)

			p.analyze.Invoke(r.ctx, text, func(s asr.Sentiment, err error) {
				if err != nil {
					done(r.fail(err))
					return
				}
				done(r.analyzed(s))
			})
		})
	})
}

// RunPromise starts a run written as a Promise chain. The returned Promise is always fulfilled; a
// failed run is an Outcome with Failure set.
func (p *Pipeline) RunPromise(ctx context.Context, id asr.AudioRequest) *promise.Promise[asr.Outcome] {
	r := p.newRun(ctx, id, Promise)
	r.begin()

	normalized := promise.Then(
		p.transcribe.Promise(r.ctx, id),
		func(t asr.Transcript) *promise.Promise[asr.NormalizedText] {
			r.transcribed(t)
			return p.normalize.Promise(r.ctx, t)
		},
	)
	analyzed := promise.Then(
		normalized,
		func(text asr.NormalizedText) *promise.Promise[asr.Sentiment] {
			r.normalized(text)
			return p.analyze.Promise(r.ctx, text)
		},
	)
	outcome := promise.Map(analyzed, func(s asr.Sentiment) (asr.Outcome, error) {
		return r.analyzed(s), nil
	})

	return outcome.Catch(func(err error) (asr.Outcome, error) {
		return r.fail(err), nil
	})
}

// RunAwait starts a run written as straight-line code that awaits each stage. The returned Promise
// is always fulfilled; a failed run is an Outcome with Failure set.
func (p *Pipeline) RunAwait(ctx context.Context, id asr.AudioRequest) *promise.Promise[asr.Outcome] {
	r := p.newRun(ctx, id, Await)

	return async.Run(p.loop, func(a *async.Awaiter) (asr.Outcome, error) {
		out, err := p.awaitStages(a, r, id)
		if err != nil {
			return r.fail(err), nil
		}
		return out, nil
	})
}

func (p *Pipeline) awaitStages(a *async.Awaiter, r *run, id asr.AudioRequest) (asr.Outcome, error) {
	r.begin()

	t, err := async.Await(a, p.transcribe.Promise(r.ctx, id))
	if err != nil {
		return asr.Outcome{}, err
	}
	r.transcribed(t)

	text, err := async.Await(a, p.normalize.Promise(r.ctx, t))
	if err != nil {
		return asr.Outcome{}, err
	}
	r.normalized(text)

	s, err := async.Await(a, p.analyze.Promise(r.ctx, text))
	if err != nil {
		return asr.Outcome{}, err
	}
	return r.analyzed(s), nil
}

// Start starts a run in any Style and hands the Outcome to done. It does not block.
func (p *Pipeline) Start(ctx context.Context, style Style, id asr.AudioRequest, done func(asr.Outcome)) {
	switch style {
	case Callback:
		p.RunCallback(ctx, id, done)
	case Promise:
		p.RunPromise(ctx, id).OnSettled(func(o asr.Outcome, _ error) { done(o) })
	case Await:
		p.RunAwait(ctx, id).OnSettled(func(o asr.Outcome, _ error) { done(o) })
	default:
		panic(fmt.Sprintf("pipeline: unknown style %s", style))
	}
}

// Go is Start() returning a Promise for the Outcome.
func (p *Pipeline) Go(ctx context.Context, style Style, id asr.AudioRequest) *promise.Promise[asr.Outcome] {
	out, resolve, _ := promise.WithResolvers[asr.Outcome](p.loop)
	p.Start(ctx, style, id, resolve)
	return out
}

// StartAll starts one run per id at the same time. Their progress lines interleave. The Promise
// holds the Outcomes in the order of ids.
func (p *Pipeline) StartAll(ctx context.Context, style Style, ids ...asr.AudioRequest) *promise.Promise[[]asr.Outcome] {
	runs := make([]*promise.Promise[asr.Outcome], 0, len(ids))
	for _, id := range ids {
		runs = append(runs, p.Go(ctx, style, id))
	}
	return promise.All(p.loop, runs...)
}

// Process runs id to completion and returns its Outcome. It drives the Loop itself, so it must not
// be called while the Loop is running. The error is only for the Loop itself, a failed run is
// reported in the Outcome.
func (p *Pipeline) Process(ctx context.Context, style Style, id asr.AudioRequest) (asr.Outcome, error) {
	var out asr.Outcome
	p.Start(ctx, style, id, func(o asr.Outcome) { out = o })
	if err := p.loop.Run(ctx); err != nil {
		return asr.Outcome{}, err
	}
	return out, nil
}
