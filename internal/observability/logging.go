// Package observability owns the process-wide loggers.
//
// Two loggers exist: CLILogger writes human-oriented console output for
// command runs, ServerLogger writes structured JSON for the long-running
// service. Both default to sane console loggers before Init is called so
// early startup code can always log.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// CLILogger is used by command entry points.
	CLILogger *zap.Logger
	// ServerLogger is used by the HTTP service and background workers.
	ServerLogger *zap.Logger
)

func init() {
	CLILogger = newConsoleLogger(zapcore.InfoLevel)
	ServerLogger = CLILogger
}

// Options configures logger initialization.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Profile selects the encoding: "structured" emits JSON, "console"
	// emits human-readable lines.
	Profile string

	// File, when set, also writes rotated log files alongside stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init replaces the package loggers according to opts. Call once after
// configuration is loaded.
func Init(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Profile) {
	case "", "structured":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return fmt.Errorf("unknown logging profile: %q", opts.Profile)
	}

	sink := zapcore.AddSync(zapcore.Lock(stderrSink()))
	core := zapcore.NewCore(encoder, sink, level)

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    defaultInt(opts.MaxSizeMB, 100),
			MaxBackups: defaultInt(opts.MaxBackups, 5),
			MaxAge:     defaultInt(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		fileCore := zapcore.NewCore(encoder, zapcore.AddSync(rotator), level)
		core = zapcore.NewTee(core, fileCore)
	}

	logger := zap.New(core, zap.AddCaller())
	ServerLogger = logger
	CLILogger = newConsoleLogger(level)
	return nil
}

// Sync flushes buffered log entries. Errors are ignored; stderr sync
// failures at exit are not actionable.
func Sync() {
	_ = ServerLogger.Sync()
	_ = CLILogger.Sync()
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(zapcore.Lock(stderrSink())),
		level,
	)
	return zap.New(core)
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
	return level, nil
}

func stderrSink() zapcore.WriteSyncer {
	return os.Stderr
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
