package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"meetingsnap/internal/common/security"
)

// maskedAttrs maps attribute keys to the masking applied before a record is
// written. Keys are matched case-insensitively.
var maskedAttrs = map[string]func(string) string{
	"secret":   security.MaskSecret,
	"password": security.MaskSecret,
	"token":    security.MaskAccessToken,
	"mailbox":  security.MaskEmail,
	"eventid":  security.MaskEventID,
}

// SetupLogger configures a structured logger based on the provided configuration.
// Valid levels are: DEBUG, INFO, WARN, ERROR
// If verboseMode is true, it overrides logLevel to DEBUG.
func SetupLogger(verboseMode bool, logLevel string) *slog.Logger {
	return NewLogger(os.Stderr, verboseMode, logLevel)
}

// NewLogger builds a text logger writing to w. SetupLogger uses it with stderr;
// tests pass a buffer.
func NewLogger(w io.Writer, verboseMode bool, logLevel string) *slog.Logger {
	level := ParseLogLevel(logLevel)

	// Verbose mode overrides log level to DEBUG
	if verboseMode {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: maskAttr,
	})

	return slog.New(handler)
}

// maskAttr masks string attributes whose key names a credential or identifier.
func maskAttr(groups []string, a slog.Attr) slog.Attr {
	mask, ok := maskedAttrs[strings.ToLower(a.Key)]
	if !ok || a.Value.Kind() != slog.KindString {
		return a
	}
	return slog.String(a.Key, mask(a.Value.String()))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLogLevel converts a string log level to slog.Level.
// Defaults to INFO if an invalid level is provided.
func ParseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDebug and the other Log helpers tolerate a nil logger.
func LogDebug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

func LogInfo(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

func LogWarn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func LogError(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}
