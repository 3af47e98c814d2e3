// Package config loads the demo's settings from an optional yaml file and ASRPIPE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/johnsiilver/asrpipe/asr"
	"github.com/johnsiilver/asrpipe/asr/pipeline"
	"github.com/johnsiilver/asrpipe/asr/stage"
)

// EnvPrefix starts every environment variable Load() reads. "__" separates key levels, so
// ASRPIPE_STAGES__NORMALIZATION__FAIL sets stages.normalization.fail.
const EnvPrefix = "ASRPIPE_"

// DefaultFile is read if it exists and ASRPIPE_CONFIG does not name another file.
const DefaultFile = "asrpipe.yaml"

// Config is the demo's configuration.
type Config struct {
	// Clock is "real" for wall time or "virtual" to finish instantly.
	Clock string `koanf:"clock"`
	// Styles is a comma separated list of pipeline styles to run.
	Styles string `koanf:"styles"`
	// Audio is a comma separated list of audio ids to push through each style.
	Audio string `koanf:"audio"`
	// Concurrent starts every run of a style at once instead of one after the other.
	Concurrent bool `koanf:"concurrent"`

	Stages StagesConfig `koanf:"stages"`
	Log    LogConfig    `koanf:"log"`
	Trace  TraceConfig  `koanf:"trace"`
}

type StagesConfig struct {
	Transcription StageConfig `koanf:"transcription"`
	Normalization StageConfig `koanf:"normalization"`
	Sentiment     StageConfig `koanf:"sentiment"`
}

type StageConfig struct {
	Delay time.Duration `koanf:"delay"`
	// Fail is empty for a healthy stage, or timeout, invalid_input, unavailable or any other text
	// to use as the failure message.
	Fail string `koanf:"fail"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TraceConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]interface{}{
	"clock":                      "real",
	"styles":                     "callback,promise,await",
	"audio":                      "meeting_async_005",
	"concurrent":                 false,
	"stages.transcription.delay": stage.TranscriptionDelay.String(),
	"stages.normalization.delay": stage.NormalizationDelay.String(),
	"stages.sentiment.delay":     stage.SentimentDelay.String(),
	"log.level":                  "info",
	"log.format":                 "text",
	"trace.enabled":              false,
}

// Load reads the config file, then the environment, then fills in defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	path := os.Getenv(EnvPrefix + "CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// A missing default file is fine, a missing named one is not.
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that can only be checked after decoding.
func (c *Config) Validate() error {
	switch c.Clock {
	case "real", "virtual":
	default:
		return fmt.Errorf("clock must be real or virtual, not %q", c.Clock)
	}
	if _, err := c.PipelineStyles(); err != nil {
		return err
	}
	if len(c.AudioRequests()) == 0 {
		return errors.New("audio must name at least one id")
	}
	for _, id := range asr.Stages {
		if sc := c.Stage(id); sc.Delay < 0 {
			return fmt.Errorf("stages.%s.delay cannot be negative", id.Name())
		}
	}
	return nil
}

// PipelineStyles parses Styles.
func (c *Config) PipelineStyles() ([]pipeline.Style, error) {
	var out []pipeline.Style
	for _, s := range split(c.Styles) {
		style, err := pipeline.ParseStyle(s)
		if err != nil {
			return nil, err
		}
		out = append(out, style)
	}
	if len(out) == 0 {
		return nil, errors.New("styles must name at least one style")
	}
	return out, nil
}

// AudioRequests parses Audio.
func (c *Config) AudioRequests() []asr.AudioRequest {
	var out []asr.AudioRequest
	for _, s := range split(c.Audio) {
		out = append(out, asr.AudioRequest(s))
	}
	return out
}

// Stage returns the settings for one stage.
func (c *Config) Stage(id asr.StageID) StageConfig {
	switch id {
	case asr.StageA:
		return c.Stages.Transcription
	case asr.StageB:
		return c.Stages.Normalization
	case asr.StageC:
		return c.Stages.Sentiment
	}
	return StageConfig{}
}

// StageOptions turns the settings for one stage into stage.Options.
func (c *Config) StageOptions(id asr.StageID) []stage.Option {
	sc := c.Stage(id)
	opts := []stage.Option{stage.WithDelay(sc.Delay)}
	if err := asr.ParseFailure(sc.Fail); err != nil {
		opts = append(opts, stage.WithFailure(err))
	}
	return opts
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
