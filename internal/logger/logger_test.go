package logger

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env, level string
		wantErr    bool
		enabled    zapcore.Level
	}{
		{env: "local", enabled: zapcore.DebugLevel},
		{env: "prod", enabled: zapcore.InfoLevel},
		{env: "prod", level: "error", enabled: zapcore.ErrorLevel},
		{env: "staging", wantErr: true},
		{env: "local", level: "loud", wantErr: true},
	}
	for _, tc := range tests {
		l, err := NewLogger(tc.env, tc.level)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s/%s: expected error", tc.env, tc.level)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.env, tc.level, err)
		}
		if !l.Core().Enabled(tc.enabled) {
			t.Errorf("%s/%s: level %s disabled", tc.env, tc.level, tc.enabled)
		}
		if tc.enabled > zapcore.DebugLevel && l.Core().Enabled(tc.enabled-1) {
			t.Errorf("%s/%s: level %s should be disabled", tc.env, tc.level, tc.enabled-1)
		}
	}
}

func TestProdConfig_TimestampLayout(t *testing.T) {
	cfg := prodConfig()
	arr := &stringArray{}
	cfg.EncoderConfig.EncodeTime(time.Date(2024, 2, 3, 4, 5, 6, 7e8, time.FixedZone("", 3600)), arr)
	if len(arr.items) != 1 || arr.items[0] != "2024-02-03T03:05:06Z" {
		t.Errorf("encoded time = %v", arr.items)
	}
}

// stringArray captures what an encoder appends.
type stringArray struct {
	zapcore.PrimitiveArrayEncoder
	items []string
}

func (a *stringArray) AppendString(s string) { a.items = append(a.items, s) }

func TestNewLogger_Test(t *testing.T) {
	l, err := NewLogger(EnvTest)
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("test logger must discard")
	}
}

func TestFromContext(t *testing.T) {
	l := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), l)

	if FromContext(ctx) != l {
		t.Error("FromContext did not return stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext must never return nil")
	}

	fallback := zap.NewNop()
	if FromContextOr(ctx, fallback) != l {
		t.Error("FromContextOr ignored stored logger")
	}
	if FromContextOr(context.Background(), fallback) != fallback {
		t.Error("FromContextOr did not fall back")
	}
}
