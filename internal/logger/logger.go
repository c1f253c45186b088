package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the global logger instance
var Log *slog.Logger

type Options struct {
	// Development selects text output at Debug level; otherwise JSON at Info.
	Development bool
	// Output receives log lines. Defaults to stdout.
	Output io.Writer
	// File, when set, adds a rotating log file.
	File string
	// Quiet drops Output entirely so only File (and Sentry) receive logs.
	Quiet     bool
	SentryDSN string
}

// Init initializes the global logger based on environment
// Development: Text format with Debug level
// Production: JSON format with Info level
// Optionally writes to a rotating file and sends errors to Sentry
func Init(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Development {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler

	if !opts.Quiet {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		if opts.Development {
			handlers = append(handlers, slog.NewTextHandler(out, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(out, handlerOpts))
		}
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			handlers = append(handlers, slog.NewJSONHandler(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}, handlerOpts))
		}
	}

	// Optional Sentry handler (sends errors only)
	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              opts.SentryDSN,
			TracesSampleRate: 1.0,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{
				Level: slog.LevelError,
			}.NewSentryHandler())
		}
	}

	// Use multi-handler if we have multiple, otherwise use single
	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, handlerOpts)
	case 1:
		handler = handlers[0]
	default:
		handler = slogmulti.Fanout(handlers...)
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return Log
}
