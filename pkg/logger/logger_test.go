package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedact(t *testing.T) {
	out := Redact("path", "/auth/login", "token", "abc.def.ghi", "Authorization", "Bearer x", "odd")

	assert.Equal(t, "/auth/login", out[1])
	assert.Equal(t, "[REDACTED]", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	assert.Equal(t, "odd", out[6])
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	in := []interface{}{"password", "hunter2"}
	_ = Redact(in...)
	assert.Equal(t, "hunter2", in[1])
}

func TestContextLogger_AddsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithUserID(WithRequestID(context.Background(), "req_1"), "u1")
	cl.LogRequest(ctx, "GET", "/courses", 200, 12)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req_1", fields["request_id"])
		assert.Equal(t, "u1", fields["user_id"])
		assert.Equal(t, "/courses", fields["path"])
	}
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	l := New("loud", "json")
	assert.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
}

func TestRequestID_Empty(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
}
