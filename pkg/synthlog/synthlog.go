// Package synthlog wraps zerolog for the synthesis driver, grounded on the
// teacher's pkg/telemetry/logger.go: same Logger-wraps-zerolog.Logger shape,
// same context-carried logger pattern, same WithField/WithFields builder
// methods, but fields are named for synthesis runs (query, operation,
// handle type) instead of infrastructure runs (run ID, resource ID,
// provider).
package synthlog

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how a Logger formats and filters its output.
type Config struct {
	// Level is the minimum level that will be emitted (trace, debug, info,
	// warn, error, fatal).
	Level string

	// Format selects "console" (human-readable) or "json" (machine-readable).
	Format string

	// Output names a destination: "stdout", "stderr", or a file path.
	Output string

	// EnableCaller adds file:line caller information to every entry.
	EnableCaller bool

	// TimeFormat selects "unix" or "rfc3339" timestamps.
	TimeFormat string
}

// DefaultConfig returns console-formatted, info-level logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:        "info",
		Format:       "console",
		Output:       "stderr",
		EnableCaller: true,
		TimeFormat:   "rfc3339",
	}
}

// Logger is a structured logger for one synthesis driver instance.
type Logger struct {
	zlog   zerolog.Logger
	config Config
}

// New builds a Logger from cfg, opening Output if it names a file path.
func New(cfg Config) (*Logger, error) {
	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		out = f
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	default:
		zerolog.TimeFieldFormat = zerolog.TimeFormatRFC3339
	}

	zl := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.EnableCaller {
		zl = zl.Caller()
	}

	return &Logger{zlog: zl.Logger(), config: cfg}, nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with a "component" field, for the
// distinct subsystems of the driver (oracle, install, gc, improve, ...).
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger(), config: l.config}
}

// WithFields returns a child logger with the given key/value pairs attached
// to every subsequent entry.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger(), config: l.config}
}

// WithField is the single-pair shorthand for WithFields.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger(), config: l.config}
}

// WithQuery tags entries with the query currently being installed or
// improved.
func (l *Logger) WithQuery(name string) *Logger {
	return l.WithField("query", name)
}

// WithOperation tags entries with the abstract operation currently being
// incrementalized.
func (l *Logger) WithOperation(name string) *Logger {
	return l.WithField("operation", name)
}

// WithError attaches an error to the next entry.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger(), config: l.config}
}

func (l *Logger) Trace(msg string) { l.zlog.Trace().Msg(msg) }
func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.zlog.Fatal().Msg(msg) }

func (l *Logger) Tracef(format string, args ...any) { l.zlog.Trace().Msgf(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.zlog.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zlog.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zlog.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zlog.Error().Msgf(format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.zlog.Fatal().Msgf(format, args...) }

type loggerContextKey struct{}

// WithContext attaches l to ctx so it can be retrieved deeper in a call
// chain without threading it through every function signature.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the Logger attached by WithContext, or a default
// Logger if none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	fallback, _ := New(DefaultConfig())
	return fallback
}
