/*
Package stage provides the stages of the speech pipeline: transcription, normalization and sentiment
analysis. Each is a stub that takes a fixed amount of loop time to answer.

Let's define some terms:

	Stage: A unit of the pipeline with one input, one output and a fixed simulated latency.
	Processor: The function that turns a Stage's input into its output once the latency has passed.

	- A Stage says it started before the latency begins and says it completed (or failed) after it ends.
	- A Stage never fails unless told to with WithFailure(). A failure, like a cancelled Context, is
	  reported as an *asr.StageFailure naming the Stage.
	- Every Stage offers the same work in two forms: Invoke() takes an on-done handler, Promise()
	  returns a deferred value. Both run the same code.
	- A Stage must only be used from callbacks of the loop.Loop it was built with.
*/
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnsiilver/asrpipe/asr"
	"github.com/johnsiilver/asrpipe/general/callback"
	"github.com/johnsiilver/asrpipe/general/promise"
	"github.com/johnsiilver/asrpipe/internal/logger"
	"github.com/johnsiilver/asrpipe/internal/loop"
)

const tracerName = "github.com/johnsiilver/asrpipe/asr/stage"

// Processor processes "in" once the Stage's latency has passed. If err != nil, the Stage fails.
type Processor[In, Out any] func(ctx context.Context, in In) (Out, error)

// Messages are the progress lines a Stage writes.
type Messages[In, Out any] struct {
	Started   func(in In) string
	Completed func(in In, out Out) string
	Failed    func(in In, sf *asr.StageFailure) string
}

type options struct {
	delay      *time.Duration
	fail       error
	log        *logger.Logger
	tracer     trace.Tracer
	text       string
	confidence float64
}

// Option is an optional argument to the Stage constructors.
type Option func(o *options)

// WithDelay overrides the Stage's default latency.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		o.delay = &d
	}
}

// WithFailure makes the Stage fail with err once its latency has passed. A nil err is ignored.
func WithFailure(err error) Option {
	return func(o *options) {
		o.fail = err
	}
}

// WithLogger sets the Logger used when the Context given to a call carries no entry.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithTracer sets the tracer Stage spans are started with. Defaults to the global provider's.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithScript sets what the transcription stub hears. It only affects NewTranscriber().
func WithScript(text string, confidence float64) Option {
	return func(o *options) {
		o.text = text
		o.confidence = confidence
	}
}

// Stage represents a stage in the pipeline.
type Stage[In, Out any] struct {
	id    asr.StageID
	proc  Processor[In, Out]
	delay time.Duration
	fail  error
	msgs  Messages[In, Out]

	loop   *loop.Loop
	log    *logger.Logger
	tracer trace.Tracer

	calls int
}

// NewStage is the constructor for Stage. delay is the latency unless WithDelay() is passed.
func NewStage[In, Out any](l *loop.Loop, id asr.StageID, proc Processor[In, Out], delay time.Duration, msgs Messages[In, Out], opts ...Option) *Stage[In, Out] {
	if l == nil {
		panic("NewStage cannot be called with l == nil")
	}
	if proc == nil {
		panic("NewStage cannot be called with proc == nil")
	}
	if id.Name() == "" {
		panic(fmt.Sprintf("NewStage cannot be called with unknown stage %s", id))
	}
	if msgs.Started == nil || msgs.Completed == nil || msgs.Failed == nil {
		panic("NewStage cannot be called without all Messages")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.delay != nil {
		delay = *o.delay
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	return &Stage[In, Out]{
		id:     id,
		proc:   proc,
		delay:  delay,
		fail:   o.fail,
		msgs:   msgs,
		loop:   l,
		log:    o.log,
		tracer: o.tracer,
	}
}

// ID returns which stage this is.
func (s *Stage[In, Out]) ID() asr.StageID {
	return s.id
}

// Delay returns the Stage's latency.
func (s *Stage[In, Out]) Delay() time.Duration {
	return s.delay
}

// Calls returns how many times the Stage was invoked.
func (s *Stage[In, Out]) Calls() int {
	return s.calls
}

// Invoke starts the Stage on "in" and calls done exactly once with the result. done always runs in
// a later Loop callback, never inside Invoke.
func (s *Stage[In, Out]) Invoke(ctx context.Context, in In, done callback.Handler[Out]) {
	s.calls++

	ctx, span := s.tracer.Start(
		ctx,
		"asr."+s.id.Name(),
		trace.WithAttributes(attribute.String("stage", s.id.String())),
	)
	log := logger.FromContext(ctx, s.log.Entry).WithField(logger.FieldStage, s.id.String())
	span.AddEvent(fmt.Sprintf("Pipeline stage(%s) received request", s.id))

	var (
		timer   *loop.Timer
		stop    = func() bool { return true }
		settled bool
	)
	finish := func(out Out, err error) {
		if settled {
			return
		}
		settled = true
		stop()
		defer span.End()

		if err != nil {
			sf := asr.AsStageFailure(err, s.id)
			span.RecordError(sf)
			span.SetStatus(codes.Error, sf.Message())
			s.entry(log, logger.EventFailed).WithField("error", sf.Message()).Error(s.msgs.Failed(in, sf))

			var zero Out
			done(zero, sf)
			return
		}
		span.AddEvent("Stage completed")
		s.entry(log, logger.EventCompleted).Info(s.msgs.Completed(in, out))
		done(out, nil)
	}

	if err := ctx.Err(); err != nil {
		span.AddEvent("Request error", trace.WithAttributes(attribute.String("error", err.Error())))
		s.loop.Post(func() { finish(*new(Out), err) })
		return
	}

	s.entry(log, logger.EventStarted).Info(s.msgs.Started(in))
	span.AddEvent("Stage started", trace.WithAttributes(attribute.String("delay", s.delay.String())))

	timer = s.loop.AfterFunc(s.delay, func() {
		if err := ctx.Err(); err != nil {
			finish(*new(Out), err)
			return
		}
		if s.fail != nil {
			finish(*new(Out), s.fail)
			return
		}
		out, err := s.proc(ctx, in)
		finish(out, err)
	})

	// Cancellation ends the wait early. The watcher runs off the Loop, so it hands the work back.
	stop = context.AfterFunc(ctx, func() {
		s.loop.Post(func() {
			if timer.Stop() {
				finish(*new(Out), ctx.Err())
			}
		})
	})
}

// Task returns the Stage's work on "in" as a callback.Task.
func (s *Stage[In, Out]) Task(in In) callback.Task[Out] {
	return func(ctx context.Context, done callback.Handler[Out]) {
		s.Invoke(ctx, in, done)
	}
}

// Promise starts the Stage on "in" and returns a deferred value for the result.
func (s *Stage[In, Out]) Promise(ctx context.Context, in In) *promise.Promise[Out] {
	return promise.FromTask(s.loop, ctx, s.Task(in))
}

func (s *Stage[In, Out]) entry(log *logrus.Entry, event string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		logger.FieldEvent: event,
		logger.FieldAt:    s.loop.Elapsed(),
	})
}
