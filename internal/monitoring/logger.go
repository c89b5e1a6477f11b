package monitoring

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging with domain-specific helpers
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger on stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// LoginLogger logs the outcome of a login attempt. The password is never passed in.
func (l *Logger) LoginLogger(login, ip, role string, success bool) {
	if !success {
		l.Warn("Login Failed",
			"login", login,
			"ip", ip,
		)
		return
	}
	l.Info("Login Succeeded",
		"login", login,
		"ip", ip,
		"role", role,
	)
}

// AnalysisLogger logs a completed grade analysis
func (l *Logger) AnalysisLogger(studentID string, classNum int, model string, average float64, weakCount int, duration time.Duration, cacheHit bool) {
	l.Info("Analysis Completed",
		"student_id", studentID,
		"class_num", classNum,
		"model", model,
		"average", average,
		"weak_subjects", weakCount,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}

	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

var startTime = time.Now()
