// Package obslog wraps log/slog with the environment presets and
// attribute helpers the host's components share, so that logs from the
// orchestrator, the builders, and the Runtime API client all look the
// same.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Option configures a logger built by New.
type Option func(*config)

type config struct {
	level     slog.Leveler
	json      bool
	out       io.Writer
	attrs     []slog.Attr
	addSource bool
}

// WithLevel sets the minimum level a built logger emits.
func WithLevel(level slog.Leveler) Option {
	return func(c *config) { c.level = level }
}

// WithJSONFormatter switches the handler from text to JSON output.
func WithJSONFormatter() Option {
	return func(c *config) { c.json = true }
}

// WithOutput redirects log output away from the default (io.Discard).
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// WithAttr attaches a static attribute to every record the logger emits.
func WithAttr(attr slog.Attr) Option {
	return func(c *config) { c.attrs = append(c.attrs, attr) }
}

// WithSource enables source file/line annotation (off by default; it's
// comparatively expensive and mostly useful in development).
func WithSource() Option {
	return func(c *config) { c.addSource = true }
}

// WithDevelopment configures a text-formatted, debug-level logger writing
// to stdout, tagged with the given component name.
func WithDevelopment(component string) Option {
	return func(c *config) {
		c.level = slog.LevelDebug
		c.json = false
		c.out = os.Stdout
		c.addSource = true
		c.attrs = append(c.attrs, slog.String("component", component))
	}
}

// WithProduction configures a JSON-formatted, info-level logger writing to
// stdout, tagged with the given component name.
func WithProduction(component string) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		c.json = true
		c.out = os.Stdout
		c.attrs = append(c.attrs, slog.String("component", component))
	}
}

// New builds a *slog.Logger from the given options. With no options it
// produces a silent (io.Discard) logger, matching the teacher's
// no-op-by-default convention for components that haven't been told to
// log anywhere.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level: slog.LevelInfo,
		out:   io.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     c.level,
		AddSource: c.addSource,
	}

	var handler slog.Handler
	if c.json {
		handler = slog.NewJSONHandler(c.out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(c.out, handlerOpts)
	}

	logger := slog.New(handler)
	if len(c.attrs) > 0 {
		args := make([]any, 0, len(c.attrs))
		for _, a := range c.attrs {
			args = append(args, a)
		}
		logger = logger.With(args...)
	}
	return logger
}

// Stdout is a convenience for the common "just log to stdout" case.
func Stdout(component string, json bool) *slog.Logger {
	opts := []Option{WithOutput(os.Stdout), WithAttr(slog.String("component", component))}
	if json {
		opts = append(opts, WithJSONFormatter())
	}
	return New(opts...)
}

// Component returns a structured attribute naming the emitting subsystem.
func Component(name string) slog.Attr { return slog.String("component", name) }

// Event names the logical event a record describes (e.g. "init_failed").
func Event(name string) slog.Attr { return slog.String("event", name) }

// RequestID tags a record with the Runtime API request id it concerns.
func RequestID(id string) slog.Attr { return slog.String("request_id", id) }

// Err attaches an error's message; nil errors are rendered as the empty
// string rather than panicking, matching the teacher's nil-safety rule
// for attribute helpers.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ContextAttrs extracts well-known attributes stashed in ctx by request id
// middleware, mirroring the teacher's context-aware logging extractors.
func ContextAttrs(ctx context.Context, keys ...any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		if v := ctx.Value(k); v != nil {
			if name, ok := k.(string); ok {
				attrs = append(attrs, slog.Any(name, v))
			}
		}
	}
	return attrs
}
