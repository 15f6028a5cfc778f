package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. format is "json" or "console".
func New(level, format string) *zap.Logger {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// the terminal client writes its own output to stdout
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// NewNop returns a sugared logger that discards everything, for tests and
// library callers that do not care about logs.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

var redactedKeys = []string{"token", "authorization", "password", "secret", "cookie"}

// Redact replaces values whose key looks sensitive. kv is a Sugar-style
// alternating key/value list.
func Redact(kv ...interface{}) []interface{} {
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(key)
		for _, k := range redactedKeys {
			if strings.Contains(lower, k) {
				out[i+1] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
