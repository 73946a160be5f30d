package log

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type deviceStatus string

type logLevel int8

type named struct{}

func (named) String() string { return "named" }

func TestToFields(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		input    []any
		wantKeys []string
		wantType []zapcore.FieldType
	}{
		{"empty", nil, nil, nil},
		{"scalars", []any{"plant", 1, "ok", true, "moisture", 27.5},
			[]string{"plant", "ok", "moisture"},
			[]zapcore.FieldType{zapcore.Int64Type, zapcore.BoolType, zapcore.Float64Type}},
		{"named string", []any{"status", deviceStatus("online")},
			[]string{"status"}, []zapcore.FieldType{zapcore.StringType}},
		{"named int", []any{"level", logLevel(2)},
			[]string{"level"}, []zapcore.FieldType{zapcore.Int64Type}},
		{"duration and time", []any{"took", time.Second, "at", time.Unix(0, 0)},
			[]string{"took", "at"}, []zapcore.FieldType{zapcore.DurationType, zapcore.TimeType}},
		{"stringer", []any{"v", named{}},
			[]string{"v"}, []zapcore.FieldType{zapcore.StringerType}},
		{"leading error", []any{boom, "id", "c-1"},
			[]string{"error", "id"}, []zapcore.FieldType{zapcore.ErrorType, zapcore.StringType}},
		{"field passthrough", []any{zap.String("x", "y"), "n", 3},
			[]string{"x", "n"}, []zapcore.FieldType{zapcore.StringType, zapcore.Int64Type}},
		{"trailing value", []any{"a", "b", "orphan"},
			[]string{"a", "arg#2"}, []zapcore.FieldType{zapcore.StringType, zapcore.StringType}},
		{"non-string key", []any{42, "v"},
			[]string{"42"}, []zapcore.FieldType{zapcore.StringType}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)
			if len(fields) != len(tt.wantKeys) {
				t.Fatalf("got %d fields, want %d: %+v", len(fields), len(tt.wantKeys), fields)
			}
			for i, f := range fields {
				if f.Key != tt.wantKeys[i] {
					t.Errorf("field %d key = %q, want %q", i, f.Key, tt.wantKeys[i])
				}
				if f.Type != tt.wantType[i] {
					t.Errorf("field %q type = %v, want %v", f.Key, f.Type, tt.wantType[i])
				}
			}
		})
	}
}

func TestNamedStringRendersValue(t *testing.T) {
	f := field("status", deviceStatus("offline"))
	if f.String != "offline" {
		t.Errorf("status rendered as %q, want offline", f.String)
	}
}
