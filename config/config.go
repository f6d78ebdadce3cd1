// Package config loads the YAML configuration of the command line tool.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of configuration failures.
var Error = errs.Tag("config")

type Config struct {
	Import  ImportConfig  `yaml:"import"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ImportConfig controls model finalization.
type ImportConfig struct {
	ShiftWorldToZero     bool     `yaml:"shift_world_to_zero"`
	PruneEmptyContainers bool     `yaml:"prune_empty_containers"`
	DisabledFormats      []string `yaml:"disabled_formats"`
}

type LogConfig struct {
	// Level is a zap level name such as "debug" or "warn".
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	// Namespace prefixes the names of the import metrics.
	Namespace string `yaml:"namespace"`
}

func Default() Config {
	return Config{
		Import: ImportConfig{
			ShiftWorldToZero:     true,
			PruneEmptyContainers: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "tracemodel",
		},
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, Error.Wrap(err)
	}
	return Parse(data)
}

// Parse decodes the configuration on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	conf := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, Error.Wrap(err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Validate checks that the disabled formats are registered and that the
// log level is known.
func (conf Config) Validate() error {
	known := map[string]bool{}
	for _, format := range trace.Formats() {
		known[format.Name] = true
	}
	for _, name := range conf.Import.DisabledFormats {
		if !known[name] {
			return Error.Errorf("unknown format %q in import.disabled_formats", name)
		}
	}
	if _, err := zapcore.ParseLevel(conf.Log.Level); err != nil {
		return Error.Errorf("log.level: %w", err)
	}
	return nil
}

// Options converts the import configuration to model options.
func (conf ImportConfig) Options(logger *zap.Logger) trace.Options {
	options := trace.DefaultOptions()
	options.ShiftWorldToZero = conf.ShiftWorldToZero
	options.PruneEmptyContainers = conf.PruneEmptyContainers
	options.DisabledFormats = append([]string(nil), conf.DisabledFormats...)
	options.Logger = logger
	return options
}

// Logger builds the logger described by the configuration.
func (conf LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	zapConf := zap.NewProductionConfig()
	if conf.Development {
		zapConf = zap.NewDevelopmentConfig()
	}
	zapConf.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapConf.Build()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return logger, nil
}
