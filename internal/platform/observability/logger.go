package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

// NewLoggerWithLevel builds the JSON logger used by the storefront process. Unknown level
// names fall back to info. Entries use Cloud Logging field names (severity, timestamp, message).
func NewLoggerWithLevel(levelName string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if name := strings.ToLower(strings.TrimSpace(levelName)); name != "" {
		if parsed, err := zapcore.ParseLevel(name); err == nil {
			level = parsed
		}
	}

	encoding := zap.NewProductionEncoderConfig()
	encoding.MessageKey = "message"
	encoding.TimeKey = "timestamp"
	encoding.LevelKey = "severity"
	encoding.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encoding.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoding),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core,
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(zap.String("service", "storefront")),
	), nil
}

// WithLogger is a shorthand for requestctx.WithLogger used at process start.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}
