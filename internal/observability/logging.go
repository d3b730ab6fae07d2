package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/model"
)

type loggerKey struct{}

// NewLogger builds the process logger: JSON to stdout, unsampled, tagged
// with the service name and build version.
//
// Levels:
//   - error: backend unreachable, panics, 5xx answers
//   - warn:  rejected flows, 4xx answers, circuit transitions
//   - info:  requests, session lifecycle, definition loading
//   - debug: backend payloads (redacted), cursor reconciliation
//
// An unknown log_level falls back to info.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			level.SetLevel(zapcore.InfoLevel)
		}
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Sampling = nil
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	return zc.Build(zap.Fields(
		zap.String("service", "tshop-admin"),
		zap.String("version", Version),
	))
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger is LoggerFrom plus the correlation id, trace id and locale
// of the request, when a RequestContext is present.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	if fields := requestFields(model.RequestContextFrom(ctx)); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}

func requestFields(rctx *model.RequestContext) []zap.Field {
	if rctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 3)
	fields = append(fields, zap.String("correlation_id", rctx.CorrelationID))
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	if rctx.Locale != "" {
		fields = append(fields, zap.String("locale", rctx.Locale))
	}
	return fields
}

const redacted = "[REDACTED]"

// sensitiveKeys are matched after normalizeKey, so "customer_name" and
// "customerName" are the same key.
var sensitiveKeys = map[string]struct{}{
	"customername":  {},
	"phone":         {},
	"phonenumber":   {},
	"email":         {},
	"password":      {},
	"secret":        {},
	"token":         {},
	"accesstoken":   {},
	"authorization": {},
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k))
}

// RedactBody returns a copy of a record or request body with customer data
// and credentials masked, for debug logging. extra names further keys to
// mask. Nested objects and arrays are walked; body itself is not modified.
func RedactBody(body map[string]any, extra ...string) map[string]any {
	if body == nil {
		return nil
	}
	mask := func(k string) bool {
		n := normalizeKey(k)
		if _, ok := sensitiveKeys[n]; ok {
			return true
		}
		for _, e := range extra {
			if normalizeKey(e) == n {
				return true
			}
		}
		return false
	}
	return redactMap(body, mask)
}

func redactMap(m map[string]any, mask func(string) bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if mask(k) {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v, mask)
	}
	return out
}

func redactValue(v any, mask func(string) bool) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, mask)
	case model.Resource:
		return redactMap(t, mask)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, mask)
		}
		return out
	default:
		return v
	}
}
