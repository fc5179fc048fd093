package logger

import (
	"io"
	"os"

	"log/slog"
)

// New returns a JSON slog.Logger for the given service, writing to w.
// A nil writer defaults to stdout.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}
