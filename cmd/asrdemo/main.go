// asrdemo pushes audio ids through the ASR pipeline in each orchestration style and prints the
// progress lines and the final outcomes.
//
// Settings come from asrpipe.yaml (or the file named by ASRPIPE_CONFIG), a .env file and ASRPIPE_
// environment variables. For example:
//
//	ASRPIPE_CLOCK=virtual ASRPIPE_STAGES__NORMALIZATION__FAIL=timeout asrdemo
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/kylelemons/godebug/pretty"

	"github.com/johnsiilver/asrpipe/asr"
	"github.com/johnsiilver/asrpipe/asr/pipeline"
	"github.com/johnsiilver/asrpipe/asr/stage"
	"github.com/johnsiilver/asrpipe/internal/config"
	"github.com/johnsiilver/asrpipe/internal/logger"
	"github.com/johnsiilver/asrpipe/internal/loop"
	"github.com/johnsiilver/asrpipe/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "asrdemo:", err)
		return 2
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.Trace.Enabled {
		shutdown, err := telemetry.InitTracer("asrdemo", os.Stderr, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize tracing")
			return 2
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to flush spans")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outcomes, err := demo(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("event loop stopped")
	}

	code := 0
	if err != nil {
		code = 1
	}
	for _, o := range outcomes {
		fmt.Println(pretty.Sprint(o))
		if !o.OK() {
			code = 1
		}
	}
	return code
}

// demo builds a Loop and a Pipeline from cfg and runs every style against every audio id.
func demo(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]asr.Outcome, error) {
	var clock loop.Clock = loop.RealClock{}
	if cfg.Clock == "virtual" {
		clock = loop.NewVirtualClock(time.Now())
	}
	l := loop.New(clock)

	stageOpts := func(id asr.StageID) []stage.Option {
		return append(cfg.StageOptions(id), stage.WithLogger(log))
	}
	p := pipeline.New(
		l,
		stage.NewTranscriber(l, stageOpts(asr.StageA)...),
		stage.NewNormalizer(l, stageOpts(asr.StageB)...),
		stage.NewSentimentAnalyzer(l, stageOpts(asr.StageC)...),
		pipeline.WithLogger(log),
	)

	styles, err := cfg.PipelineStyles()
	if err != nil {
		return nil, err
	}
	ids := cfg.AudioRequests()

	var outcomes []asr.Outcome
	collect := func(o asr.Outcome) { outcomes = append(outcomes, o) }

	// Each style starts once the one before it has finished so their output does not mix.
	var next func(i int)
	next = func(i int) {
		if i == len(styles) {
			return
		}
		style := styles[i]
		fmt.Printf("Before calling %s pipeline\n", style)
		if cfg.Concurrent {
			p.StartAll(ctx, style, ids...).OnSettled(func(outs []asr.Outcome, _ error) {
				for _, o := range outs {
					collect(o)
				}
				next(i + 1)
			})
		} else {
			sequential(ctx, p, style, ids, collect, func() { next(i + 1) })
		}
		fmt.Printf("After calling %s pipeline (pipeline is running in the background)\n", style)
	}
	l.Post(func() { next(0) })

	if err := l.Run(ctx); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// sequential runs ids one after another, handing each Outcome to each and calling done after the last.
func sequential(ctx context.Context, p *pipeline.Pipeline, style pipeline.Style, ids []asr.AudioRequest, each func(asr.Outcome), done func()) {
	if len(ids) == 0 {
		done()
		return
	}
	p.Start(ctx, style, ids[0], func(o asr.Outcome) {
		each(o)
		sequential(ctx, p, style, ids[1:], each, done)
	})
}
