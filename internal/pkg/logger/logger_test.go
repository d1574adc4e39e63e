package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "scenecast-test",
	}), &buf
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.Info("frame captured", "frame", 12)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "frame captured" {
		t.Errorf("expected msg='frame captured', got %v", entry["msg"])
	}
	if entry["frame"] != float64(12) {
		t.Errorf("expected frame=12, got %v", entry["frame"])
	}
	if entry["service"] != "scenecast-test" {
		t.Errorf("expected service='scenecast-test', got %v", entry["service"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "text", Output: &buf})

	log.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got: %s", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info level logs info", "info", func(l *Logger) { l.Info("test") }, true},
		{"info level drops debug", "info", func(l *Logger) { l.Debug("test") }, false},
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("test") }, true},
		{"error level drops warn", "error", func(l *Logger) { l.Warn("test") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(tt.level)
			tt.logFn(log)

			if got := buf.Len() > 0; got != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got %v", tt.shouldLog, got)
			}
		})
	}
}

func TestChildLoggers(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.WithComponent("pipeline").
		WithJobID("job-456").
		WithStage("capturing").
		WithFields(map[string]any{"fps": 30}).
		Info("stage entered")

	out := buf.String()
	for _, want := range []string{`"component":"pipeline"`, `"job_id":"job-456"`, `"stage":"capturing"`, `"fps":30`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %s, got: %s", want, out)
		}
	}
}

func TestWithError(t *testing.T) {
	log, buf := newBufferLogger("info")

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}

	log.WithError(context.DeadlineExceeded).Info("timed out")
	if !strings.Contains(buf.String(), "deadline exceeded") {
		t.Errorf("expected output to contain error, got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")

	log.FromContext(ctx).Info("test message")

	out := buf.String()
	if !strings.Contains(out, "req-abc") || !strings.Contains(out, "job-xyz") {
		t.Errorf("expected request and job ids, got: %s", out)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("nobody hears this")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}
