package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure the process logger.
type Options struct {
	// JSON switches from console to JSON encoding, for log shippers.
	JSON  bool
	Debug bool
	// App and Version are attached to every entry when set.
	App     string
	Version string
}

// New builds the process logger. Console encoding is used unless JSON is set.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"
	var sampling *zap.SamplingConfig

	if opts.JSON {
		encoding = "json"
		// Batch runs over many users repeat the same entries.
		sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	if opts.Debug {
		level = zapcore.DebugLevel
		sampling = nil
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		Sampling:         sampling,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    initialFields(opts),
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "step",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,

			StacktraceKey:  "stacktrace",
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}

	return cfg.Build()
}

func initialFields(opts Options) map[string]interface{} {
	fields := make(map[string]interface{})
	if opts.App != "" {
		fields["app"] = opts.App
	}
	if opts.Version != "" {
		fields["version"] = opts.Version
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
