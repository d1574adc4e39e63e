// Package logger wraps log/slog with the attributes scenecast services
// attach to every line: service, component, job and request ids, and the
// render stage a job is in.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	JobIDKey     contextKey = "job_id"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	Output io.Writer
	// AddSource adds file and line to records.
	AddSource bool
	// ServiceName is attached to every record as "service".
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	env := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return def
	}
	return Config{
		Level:       env("LOG_LEVEL", "info"),
		Format:      env("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   env("LOG_SOURCE", "false") == "true",
		ServiceName: env("SERVICE_NAME", "scenecast"),
	}
}

// New creates a Logger from cfg. Timestamps are written in UTC.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	l := slog.New(h)
	if cfg.ServiceName != "" {
		l = l.With(slog.String("service", cfg.ServiceName))
	}
	return &Logger{Logger: l}
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// NewDefault creates a logger with DefaultConfig.
func NewDefault() *Logger { return New(DefaultConfig()) }

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithRequestID(requestID string) *Logger { return l.with("request_id", requestID) }

func (l *Logger) WithJobID(jobID string) *Logger { return l.with("job_id", jobID) }

func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }

// WithStage tags records with the pipeline stage.
func (l *Logger) WithStage(stage string) *Logger { return l.with("stage", stage) }

// WithError attaches err's message. A nil err returns l itself.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// FromContext returns l tagged with the request and job ids stored in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if id, _ := ctx.Value(RequestIDKey).(string); id != "" {
		out = out.WithRequestID(id)
	}
	if id, _ := ctx.Value(JobIDKey).(string); id != "" {
		out = out.WithJobID(id)
	}
	return out
}

// LogFatal logs msg at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// parseLevel accepts slog level names in any case plus "warning". Anything
// else is info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lv
}
