package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type LoggerConfig struct {
	Level     string
	Format    string
	AddSource bool
}

func LoggerFromViper() (*slog.Logger, error) {
	logCfg := LoggerConfig{
		Level:     viper.GetString("logging.level"),
		Format:    viper.GetString("logging.format"),
		AddSource: viper.GetBool("logging.add_source"),
	}
	if !viper.IsSet("logging.level") && viper.GetBool("trace") {
		logCfg.Level = "debug"
	}
	return NewLogger(os.Stderr, logCfg)
}

func NewLogger(w io.Writer, cfg LoggerConfig) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseSlogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", cfg.Format)
	}

	return slog.New(h).With("service", "guildmind"), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func parseSlogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
