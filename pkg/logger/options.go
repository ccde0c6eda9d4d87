package logger

import (
	"io"
	"log/slog"
)

// Option configures a Logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug, which includes per-key sync traces.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the charmbracelet/log handler used by interactive
// strata commands.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects slog's JSON handler, used by serve --json and the
// --log-file sink. It wins over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter replaces the output. The default is os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// WithWriters writes every record to each of w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithSource adds the caller's file:line.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

// WithInstance tags every record with the strata instance name so logs from
// several processes sharing one L2 and durable store can be told apart.
func WithInstance(name string) Option {
	return func(c *config) {
		if name == "" {
			return
		}
		c.attrs = append(c.attrs, slog.String("instance", name))
	}
}
