package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSink) SendAlert(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func TestAlertCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := &Logger{zap.New(core)}
	sink := &recordingSink{}
	log := base.WithAlerts(sink, zapcore.ErrorLevel).With(StringField("job_id", "j-1"))

	log.Error("plain error")
	log.Warn("tagged warn", AlertField())
	log.ErrorContextWithAlert(context.Background(), "job failed", StringField("reason", "timeout"))

	assert.Equal(t, 3, logs.Len(), "every entry still reaches the primary core")
	if assert.Len(t, sink.messages, 1) {
		msg := sink.messages[0]
		assert.Contains(t, msg, "job failed")
		assert.Contains(t, msg, "job_id: j-1")
		assert.Contains(t, msg, "reason: timeout")
		assert.NotContains(t, msg, "send_alert")
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...(truncated)", Truncate("abcdef", 2))
}
