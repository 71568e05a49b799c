package releasea

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger receives the client's diagnostic events. Implementations must be safe
// for concurrent use. keysAndValues alternate between string keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"accesstoken":   {},
	"refreshtoken":  {},
	"csrftoken":     {},
	"x-csrf-token":  {},
	"password":      {},
	"cookie":        {},
	"set-cookie":    {},
}

// IsSensitiveKey reports whether a log attribute or header with this name is
// always redacted.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "_", ""))
	_, ok := sensitiveKeys[k]
	return ok
}

// RedactAttr is a slog ReplaceAttr function masking sensitive attributes.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger. The caller's handler decides formatting;
// redaction is only applied by handlers built with RedactAttr.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

// NewSimpleLogger writes redacted text logs to stderr at the given level.
func NewSimpleLogger(level slog.Level) Logger {
	return NewWriterLogger(os.Stderr, level)
}

// NewWriterLogger writes redacted text logs to w at the given level.
func NewWriterLogger(w io.Writer, level slog.Level) Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: RedactAttr,
	})
	return &slogLogger{l: slog.New(handler).With("component", "releasea")}
}

func (s *slogLogger) Debug(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (s *slogLogger) Info(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (s *slogLogger) Warn(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (s *slogLogger) Error(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

// ParseLogLevel maps a config string onto a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}
