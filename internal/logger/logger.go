package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

// Setup builds a slog.Logger writing to w. Format "json" produces JSON
// lines, anything else the text handler. Verbose forces DEBUG level and
// adds source locations.
func Setup(w io.Writer, cfg config.Logging, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupDefault installs the logger built by Setup as the global logger.
func SetupDefault(w io.Writer, cfg config.Logging, verbose bool) *slog.Logger {
	l := Setup(w, cfg, verbose)
	slog.SetDefault(l)
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
