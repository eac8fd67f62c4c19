// Package logger wires the server's append-only debug log: one JSON line
// per dispatched operation, written through a rotating lumberjack sink and
// tee'd to a colorized console core, the way the agent wires its own zap
// logger over a grpc core and a file core.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, matching the rest of this codebase's
// rotating-log conventions.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the debug log's destination and rotation policy.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OutcomeClass is the coarse classification recorded for every dispatched
// operation, independent of the specific error kind.
type OutcomeClass string

const (
	OutcomeSuccess OutcomeClass = "success"
	OutcomeError   OutcomeClass = "error"
	OutcomeDryRun  OutcomeClass = "dry_run"
)

// New opens the rotating debug-log sink and returns a *zap.Logger tee'd
// across a JSON file core (the rotating sink) and a colorized console core
// (local debugging), mirroring the agent's NewTee construction over a
// grpc core and a file core.
func New(cfg Config) *zap.Logger {
	fileWriter := zapcore.AddSync(&lj.Logger{
		Filename:   cfg.Path,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	})
	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(consoleConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, fileWriter, zap.InfoLevel),
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), zap.DebugLevel),
	)
	return zap.New(core)
}

// LogOperation writes one debug-log entry for a completed dispatch.
func LogOperation(logger *zap.Logger, tool string, elapsedSeconds float64, outcome OutcomeClass) {
	logger.Info("dispatch",
		zap.String("tool", tool),
		zap.Float64("elapsed_seconds", elapsedSeconds),
		zap.String("outcome", string(outcome)),
	)
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
