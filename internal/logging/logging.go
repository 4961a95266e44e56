// Package logging configures the process-wide logger for the kafcat CLI.
package logging

import (
	"log/slog"
	"os"
)

// Init installs the process-wide default slog logger. Output goes to stderr,
// keeping stdout free for message data, and the handler omits the time
// attribute.
func Init(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return attr
		},
	})
	slog.SetDefault(slog.New(handler))
}
