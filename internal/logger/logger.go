// Package logger builds the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level   slog.Level
	out     io.Writer
	logFile string
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithOutput replaces stderr as the primary destination.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithLogFile additionally writes logs to a rotated file at path. An empty
// path disables file output.
func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// New returns a JSON logger in production and a colored text logger
// otherwise.
func New(env string, opts ...Option) *slog.Logger {
	o := &options{level: slog.LevelInfo, out: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	if env == "production" {
		out := o.out
		if o.logFile != "" {
			out = io.MultiWriter(out, rotating(o.logFile))
		}
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: o.level}))
	}

	console := tint.NewHandler(o.out, &tint.Options{
		Level:      o.level,
		TimeFormat: time.TimeOnly,
	})
	if o.logFile == "" {
		return slog.New(console)
	}

	// Keep escape codes out of the file.
	file := slog.NewTextHandler(rotating(o.logFile), &slog.HandlerOptions{Level: o.level})
	return slog.New(slogmulti.Fanout(console, file))
}

func rotating(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}
