// Package logger provides structured JSON logging with PII redaction.
//
// Webhook payloads carry contact emails; redaction is on by default so a
// stray log line never leaks an address in clear. Secrets and raw payloads
// must never be passed as field values at all.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel converts a config string ("debug", "info", ...) to a Level.
// Unknown strings map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes structured JSON entries as key-value field pairs.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	redactPII bool
}

var std = &Logger{out: os.Stderr, level: INFO, redactPII: true}

// SetLevel sets the minimum level for the package-level logger.
func SetLevel(l Level) { std.level = l }

// SetRedactPII toggles email redaction for the package-level logger.
func SetRedactPII(on bool) { std.redactPII = on }

// SetOutput redirects the package-level logger, used by tests.
func SetOutput(w io.Writer) { std.out = w }

// Debug emits a DEBUG entry with alternating key, value fields.
func Debug(msg string, fields ...any) { std.emit(DEBUG, msg, fields...) }

// Info emits an INFO entry.
func Info(msg string, fields ...any) { std.emit(INFO, msg, fields...) }

// Warn emits a WARN entry.
func Warn(msg string, fields ...any) { std.emit(WARN, msg, fields...) }

// Error emits an ERROR entry.
func Error(msg string, fields ...any) { std.emit(ERROR, msg, fields...) }

func (l *Logger) emit(level Level, msg string, fields ...any) {
	if level < l.level {
		return
	}

	entry := map[string]string{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactPII {
			val = redact(key, val)
		}
		entry[key] = val
	}

	line, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(line))
	l.mu.Unlock()
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redact(key, val string) string {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "email") || strings.Contains(lower, "contact") {
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail masks an email address for safe logging:
// "jane.doe@example.com" becomes "ja***@example.com". Local parts of two
// characters or fewer are fully masked.
func RedactEmail(email string) string {
	at := strings.Split(email, "@")
	if len(at) != 2 {
		return "***@***"
	}
	if len(at[0]) > 2 {
		return at[0][:2] + "***@" + at[1]
	}
	return "***@" + at[1]
}
