package logging

import (
	"github.com/augurvault/augur/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. LOG_LEVEL selects debug|info|warn|error and
// LOG_ENCODING selects json|console. Every entry carries the service name.
func New(service string) (*zap.Logger, error) {
	return build(service, "stdout", "json")
}

// NewCLI is New for command-line tools: entries go to stderr, console
// encoded by default, so stdout carries only command output.
func NewCLI(service string) (*zap.Logger, error) {
	return build(service, "stderr", "console")
}

func build(service, output, encoding string) (*zap.Logger, error) {
	level := utils.Env("LOG_LEVEL", "info")
	cfg := zap.NewProductionConfig()
	cfg.Encoding = utils.Env("LOG_ENCODING", encoding)
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if service != "" {
		cfg.InitialFields = map[string]interface{}{"service": service}
	}
	return cfg.Build()
}
