// Package logging builds the zap logger used by the CLI.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output targets.
const (
	OutputStderr = "stderr"
	OutputFile   = "file"
	OutputBoth   = "both"
	OutputNone   = "none"
)

// Config configures the logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	Output string // stderr, file, both, none

	// File sink, rotated by lumberjack
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days

	// NoColor disables level colours in the console encoder
	NoColor bool

	// Writer replaces stderr (tests)
	Writer io.Writer
}

// DefaultConfig logs warnings and above to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "warn",
		Format:     "console",
		Output:     OutputStderr,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "", "console":
		if !cfg.NoColor {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var cores []zapcore.Core
	switch cfg.Output {
	case "", OutputStderr, OutputBoth:
		var w io.Writer = os.Stderr
		if cfg.Writer != nil {
			w = cfg.Writer
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), level))
	case OutputFile, OutputNone:
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	if cfg.Output == OutputFile || cfg.Output == OutputBoth {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output %q requires a file path", cfg.Output)
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		// Files never get colour codes.
		fileConfig := encoderConfig
		fileConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		fileEncoder := zapcore.NewJSONEncoder(fileConfig)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
