// Package logger wraps logrus with the formats and fields the pipeline's progress output uses.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Field names shared by everything that logs progress.
const (
	FieldRun   = "run_id"
	FieldAudio = "audio"
	FieldStyle = "style"
	FieldStage = "stage"
	FieldEvent = "event"
	FieldAt    = "at"
)

// Events attached as FieldEvent.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventStep      = "step"
)

// Options configures New().
type Options struct {
	// Level is one of debug, info, warn or error. Anything else is info.
	Level string
	// Format is text or json. Empty picks text.
	Format string
	// Out is where lines go. Defaults to os.Stdout.
	Out io.Writer
}

// Logger is a logrus.Entry that can be handed around by pointer.
type Logger struct {
	*logrus.Entry
}

// New creates a Logger. Text output is meant for a person at a console; json is for collectors.
func New(opts Options) *Logger {
	base := logrus.New()

	switch strings.ToLower(opts.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	base.SetOutput(opts.Out)
	base.SetLevel(ParseLevel(opts.Level))

	return &Logger{Entry: logrus.NewEntry(base)}
}

// Wrap makes a Logger out of an existing logrus.Logger, which is handy with the logrus test hook.
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{Entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that writes nowhere.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// ParseLevel maps a level name onto a logrus.Level. Unknown names are info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

// WithRun attaches the fields that identify one pipeline run.
func (l *Logger) WithRun(runID, audio, style string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		FieldRun:   runID,
		FieldAudio: audio,
		FieldStyle: style,
	})
}

// WithError standardizes error logging.
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	return l.Entry.WithField("error", err.Error())
}

type ctxKey struct{}

// NewContext returns a child of ctx that carries e. Stages log through the entry found here so their
// lines carry the fields of the run that called them.
func NewContext(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the entry stored by NewContext() or fallback if there is none.
func FromContext(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && e != nil {
		return e
	}
	return fallback
}
