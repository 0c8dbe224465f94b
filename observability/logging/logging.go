package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes the logger produced by Setup. The zero value logs at info
// level to stdout.
type Options struct {
	Level string
	// File, when set, additionally writes rotated logs to the given path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output overrides stdout. Tests use it to capture lines.
	Output io.Writer
}

// ParseLevel maps a textual level to slog. Unknown values fall back to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// Setup configures the process logger to emit structured JSON and returns it.
// Every line carries the service name and, when provided, the environment.
// The returned closer flushes the rotating file sink if one was opened.
func Setup(service, env string, opts Options) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.File); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    positive(opts.MaxSizeMB, 100),
			MaxBackups: positive(opts.MaxBackups, 5),
			MaxAge:     positive(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			if sensitiveKey(attr.Key) {
				return MaskField(attr.Key, attr.Value.String())
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withAttrs := handler.WithAttrs(attrs)
	base := slog.New(withAttrs)
	slog.SetDefault(base)

	// Route the standard library logger through the same handler.
	bridge := slog.NewLogLogger(withAttrs, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base, closer
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
