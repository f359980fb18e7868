package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/jsonstore/internal/domain"
	"github.com/kailas-cloud/jsonstore/internal/version"
)

// EnvTest selects a logger that discards everything.
const EnvTest = "test"

// presets maps an environment to its base zap configuration.
var presets = map[string]func() zap.Config{
	"prod":   prodConfig,
	"local":  zap.NewDevelopmentConfig,
	"dev":    zap.NewDevelopmentConfig,
	"docker": zap.NewDevelopmentConfig,
}

// NewLogger builds the logger for env: JSON in prod, console elsewhere, a
// no-op for EnvTest. A non-empty level (debug, info, warn, error) replaces
// the preset level.
func NewLogger(env string, level ...string) (*zap.Logger, error) {
	if env == EnvTest {
		return zap.NewNop(), nil
	}
	preset, ok := presets[env]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}
	cfg := preset()
	if len(level) > 0 && level[0] != "" {
		lvl, err := zapcore.ParseLevel(level[0])
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level[0], err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.With(zap.String("service", "jsonstore"), zap.String("version", version.Version)), nil
}

// prodConfig writes JSON with timestamps in the same layout entries use.
func prodConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(domain.FormatTimestamp(t))
	}
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}
