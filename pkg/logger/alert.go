package logger

import (
	"fmt"
	"sort"
	"strings"

	"portfolio-advisor/pkg/common"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AlertSink receives alert-tagged log entries. Implementations must not block.
type AlertSink interface {
	SendAlert(message string)
}

// AlertField marks an entry for forwarding to the alert sink.
func AlertField() zap.Field {
	return zap.Bool(common.KEY_LOG_HOOK_SEND_ALERT, true)
}

type AlertCore struct {
	core     zapcore.Core
	sink     AlertSink
	minLevel zapcore.Level
	fields   []zapcore.Field
}

// WithAlertSink returns a zap option that tees alert-tagged entries at or
// above minLevel into sink.
func WithAlertSink(sink AlertSink, minLevel zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &AlertCore{core: core, sink: sink, minLevel: minLevel}
	})
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		sink:     a.sink,
		minLevel: a.minLevel,
		fields:   append(append([]zapcore.Field{}, a.fields...), fields...),
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, a)
	}
	return checkedEntry
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= a.minLevel && a.sink != nil && shouldAlert(fields) {
		a.sink.SendAlert(formatAlert(entry, append(append([]zapcore.Field{}, a.fields...), fields...)))
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}

func shouldAlert(fields []zapcore.Field) bool {
	for _, f := range fields {
		if f.Key == common.KEY_LOG_HOOK_SEND_ALERT && f.Type == zapcore.BoolType && f.Integer == 1 {
			return true
		}
	}
	return false
}

func formatAlert(entry zapcore.Entry, fields []zapcore.Field) string {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if f.Key == common.KEY_LOG_HOOK_SEND_ALERT {
			continue
		}
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("• %s: %v\n", k, enc.Fields[k]))
	}

	return fmt.Sprintf(
		"🚨 %s Alert\n\nMessage: %s\n\nFields:\n%s\nTime: %s",
		entry.Level.CapitalString(),
		entry.Message,
		sb.String(),
		entry.Time.Format("2006-01-02 15:04:05"),
	)
}

// WithAlerts returns a child logger whose alert-tagged entries also reach sink.
func (l *Logger) WithAlerts(sink AlertSink, minLevel zapcore.Level) *Logger {
	return &Logger{l.Logger.WithOptions(WithAlertSink(sink, minLevel))}
}
