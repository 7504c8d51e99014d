package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lepinkainen/humanlog"
)

// ParseLevel converts a level name such as "debug" or "warn" to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Init installs a human-readable handler writing to w as the default logger.
func Init(w io.Writer, levelName string) error {
	level, err := ParseLevel(levelName)
	if err != nil {
		return err
	}

	handler := humanlog.NewHandler(w, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}
