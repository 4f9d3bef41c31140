// Package logging builds the process logger and scrubs secrets out of
// structured context before it is written.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const Redacted = "[REDACTED]"

var sensitive = []string{"password", "token", "secret", "authorization", "auth"}

// New returns a human-readable console logger in development and a JSON
// logger everywhere else.
func New(dev bool) zerolog.Logger {
	return NewTo(os.Stdout, dev)
}

func NewTo(w io.Writer, dev bool) zerolog.Logger {
	if dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitive {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Sanitize copies fields, replacing values under sensitive keys at any depth.
func Sanitize(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitive(k) {
			out[k] = Redacted
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}
