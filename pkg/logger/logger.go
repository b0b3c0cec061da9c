package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var log *zap.Logger

// Init builds the global logger. Logs go to stderr so they never mix with
// the interactive prompts on stdout. An interactive stderr or env "dev" gets
// the console encoder; otherwise lines are JSON.
func Init(service, env, level string) {
	log = New(service, env, level, term.IsTerminal(int(os.Stderr.Fd())))
	log.Debug("logger.initialized", zap.String("env", env), zap.String("level", level))
}

// New builds a logger without touching the global. An unknown level means info.
func New(service, env, level string, console bool) *zap.Logger {
	var cfg zap.Config
	if console || env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.DisableStacktrace = true
		if console {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return l.With(zap.String("service", service))
}

// L returns the global logger, initializing a dev logger on first use.
func L() *zap.Logger {
	if log == nil {
		Init("slotclaim", "dev", "info")
	}
	return log
}

// Sync flushes buffered entries. Defer it in main.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
