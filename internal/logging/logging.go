package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type FileLogger struct {
	Logger  *slog.Logger
	Close   func() error
	Path    string
	Enabled bool
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewFileLogger writes JSON lines to <dataDir>/logs/engine.log when debug is
// on and discards everything otherwise.
func NewFileLogger(dataDir string, debug bool) (FileLogger, error) {
	disabled := FileLogger{Logger: Nop(), Close: func() error { return nil }, Enabled: false}
	if !debug {
		return disabled, nil
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return disabled, err
	}
	path := filepath.Join(logDir, "engine.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return disabled, err
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})).With("component", "anchoredit")
	return FileLogger{
		Logger:  logger,
		Close:   file.Close,
		Path:    path,
		Enabled: true,
	}, nil
}

// NewStderrLogger is used by the interactive CLI, where stdout belongs to the user.
func NewStderrLogger(debug bool) *slog.Logger {
	if !debug {
		return Nop()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
