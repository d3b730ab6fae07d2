package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/model"
)

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{level: "", enabled: zapcore.InfoLevel, muted: zapcore.DebugLevel},
		{level: "debug", enabled: zapcore.DebugLevel},
		{level: "warn", enabled: zapcore.WarnLevel, muted: zapcore.InfoLevel},
		{level: "ERROR", enabled: zapcore.ErrorLevel, muted: zapcore.WarnLevel},
		{level: "chatty", enabled: zapcore.InfoLevel, muted: zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tt.level})
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			core := logger.Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("%s should be enabled", tt.enabled)
			}
			if tt.level != "debug" && core.Enabled(tt.muted) {
				t.Errorf("%s should be muted", tt.muted)
			}
		})
	}
}

func TestLoggerFrom(t *testing.T) {
	stored, fallback := zap.NewNop(), zap.NewNop()

	if got := LoggerFrom(WithLogger(context.Background(), stored), fallback); got != stored {
		t.Error("stored logger not returned")
	}
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("fallback not returned")
	}
	if got := LoggerFrom(WithLogger(context.Background(), nil), fallback); got != fallback {
		t.Error("nil stored logger should yield the fallback")
	}
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name string
		rctx *model.RequestContext
		want map[string]any
	}{
		{
			name: "full context",
			rctx: &model.RequestContext{CorrelationID: "corr-7", TraceID: "4bf92f35", Locale: "vi"},
			want: map[string]any{"correlation_id": "corr-7", "trace_id": "4bf92f35", "locale": "vi"},
		},
		{
			name: "correlation only",
			rctx: &model.RequestContext{CorrelationID: "corr-8"},
			want: map[string]any{"correlation_id": "corr-8"},
		},
		{
			name: "no request context",
			want: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			ctx := context.Background()
			if tt.rctx != nil {
				ctx = model.WithRequestContext(ctx, tt.rctx)
			}

			RequestLogger(ctx, zap.New(core)).Info("page loaded")

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("entries = %d", len(entries))
			}
			got := entries[0].ContextMap()
			if len(got) != len(tt.want) {
				t.Errorf("fields = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestRequestLogger_prefersContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core).With(zap.String("request_id", "r-1")))
	ctx = model.WithRequestContext(ctx, &model.RequestContext{CorrelationID: "corr-9"})

	RequestLogger(ctx, zap.NewNop()).Warn("save rejected")

	entries := logs.FilterMessage("save rejected").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "r-1" || fields["correlation_id"] != "corr-9" {
		t.Errorf("fields = %v", fields)
	}
}

func TestRedactBody(t *testing.T) {
	car := map[string]any{
		"licensePlate": "51A-12345",
		"repairDate":   "2024-06-15",
		"customerName": "Nguyen Van A",
		"carMaker":     "Toyota",
		"owner": map[string]any{
			"phone_number": "0901234567",
			"city":         "HCMC",
		},
		"contacts": []any{
			map[string]any{"Email": "a@example.vn", "role": "owner"},
		},
	}

	got := RedactBody(car)

	if got["customerName"] != redacted {
		t.Errorf("customerName = %v", got["customerName"])
	}
	if got["licensePlate"] != "51A-12345" || got["carMaker"] != "Toyota" {
		t.Errorf("non-sensitive fields changed: %v", got)
	}
	owner := got["owner"].(map[string]any)
	if owner["phone_number"] != redacted || owner["city"] != "HCMC" {
		t.Errorf("owner = %v", owner)
	}
	contact := got["contacts"].([]any)[0].(map[string]any)
	if contact["Email"] != redacted || contact["role"] != "owner" {
		t.Errorf("contact = %v", contact)
	}

	if car["customerName"] != "Nguyen Van A" {
		t.Error("input was modified")
	}
	if car["owner"].(map[string]any)["phone_number"] != "0901234567" {
		t.Error("nested input was modified")
	}
}

func TestRedactBody_extraKeysAndResources(t *testing.T) {
	accessory := model.Resource{"id": 1, "name": "Brake pad", "price": "150000", "supplier_ref": "S-99"}

	got := RedactBody(accessory, "supplierRef")

	if got["supplier_ref"] != redacted {
		t.Errorf("supplier_ref = %v", got["supplier_ref"])
	}
	if got["name"] != "Brake pad" || got["price"] != "150000" {
		t.Errorf("got = %v", got)
	}
	if RedactBody(nil) != nil {
		t.Error("RedactBody(nil) should be nil")
	}
}
