// Package logging builds the process logger from config.LogConfig.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/evan-idocoding/rtblink/config"
)

// Logger is a zap.Logger together with its adjustable level and the files it writes to.
type Logger struct {
	*zap.Logger

	// Level can be changed at runtime (see ops.LogLevelSetHandler).
	Level zap.AtomicLevel

	closers []io.Closer
}

// Close syncs the logger and closes any files it opened.
func (l *Logger) Close() error {
	if l.Logger != nil {
		_ = l.Sync()
	}
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}

// New builds a Logger from c. Every output gets its own core with the same encoder and
// level. File outputs go through lumberjack when rotation is enabled.
func New(c config.LogConfig) (*Logger, error) {
	lvl, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	encCfg := encoderConfig(c.Development)
	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want console or json)", c.Format)
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	l := &Logger{Level: level}
	var cores []zapcore.Core
	for _, out := range outputs {
		ws, cl, err := openOutput(out, c.Rotation)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		if cl != nil {
			l.closers = append(l.closers, cl)
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	l.Logger = zap.New(zapcore.NewTee(cores...), opts...)
	return l, nil
}

// ParseLevel maps debug, info, warn (or warning) and error to zap levels.
// The empty string is info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

// SetGlobal installs l as the zap global logger and redirects the standard library
// logger to it. The returned function restores both.
func SetGlobal(l *zap.Logger) func() {
	undoGlobals := zap.ReplaceGlobals(l)
	undoStd, err := zap.RedirectStdLogAt(l, zap.InfoLevel)
	return func() {
		if err == nil {
			undoStd()
		}
		undoGlobals()
	}
}

func openOutput(out string, rot config.RotationConfig) (zapcore.WriteSyncer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
	}
	if rot.Enable {
		filename := out
		if strings.TrimSpace(rot.Filename) != "" {
			filename = rot.Filename
		}
		lj := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    atLeast(rot.MaxSizeMB, 1),
			MaxBackups: atLeast(rot.MaxBackups, 1),
			MaxAge:     atLeast(rot.MaxAgeDays, 1),
			Compress:   rot.Compress,
		}
		return zapcore.AddSync(lj), lj, nil
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %q: %w", out, err)
	}
	return zapcore.AddSync(f), f, nil
}

func encoderConfig(dev bool) zapcore.EncoderConfig {
	if dev {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	return zap.NewProductionEncoderConfig()
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}
