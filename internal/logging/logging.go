// Package logging builds the process-wide structured logger: JSON slog
// output, rotated on disk when a log directory is configured.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the process logger.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Dir is where rotated log files land. Empty means stdout.
	Dir string
	// Name is the log file base name, without extension.
	Name string
}

// New builds a JSON logger per the config. With a directory set the output
// rotates at 100 MB and keeps two weeks of compressed backups; without one
// it goes to stdout.
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Dir != "" {
		name := cfg.Name
		if name == "" {
			name = "fusion"
		}
		w = &lumberjack.Logger{
			Filename: filepath.Join(cfg.Dir, name+".log"),
			MaxSize:  100, // MB
			MaxAge:   14,
			Compress: true,
		}
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(h)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
