package logger

import (
	"errors"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/sma-exam-engine/pkg/config"
)

// Reporter ships error entries to an external tracker.
type Reporter interface {
	Report(level zapcore.Level, msg string, err error, extras map[string]interface{})
}

// RollbarReporter reports through the global rollbar notifier.
type RollbarReporter struct{}

// NewRollbarReporter configures the rollbar notifier.
func NewRollbarReporter(cfg config.RollbarConfig) *RollbarReporter {
	rollbar.SetToken(cfg.Token)
	rollbar.SetEnvironment(cfg.Environment)
	rollbar.SetCodeVersion(cfg.CodeVersion)
	return &RollbarReporter{}
}

// Report sends the entry to rollbar.
func (RollbarReporter) Report(level zapcore.Level, msg string, err error, extras map[string]interface{}) {
	rollbarLevel := rollbar.ERR
	if level >= zapcore.DPanicLevel {
		rollbarLevel = rollbar.CRIT
	}
	if err == nil {
		err = errors.New(msg)
	}
	extras["message"] = msg
	rollbar.Log(rollbarLevel, err, extras)
}

// Close waits for queued items to be sent.
func (RollbarReporter) Close() {
	rollbar.Wait()
}

// RollbarCore is a zapcore.Core forwarding entries at or above a level to a Reporter.
type RollbarCore struct {
	zapcore.LevelEnabler
	reporter Reporter
	fields   []zapcore.Field
}

// NewRollbarCore builds a reporting core.
func NewRollbarCore(reporter Reporter, level zapcore.LevelEnabler) *RollbarCore {
	return &RollbarCore{LevelEnabler: level, reporter: reporter}
}

func (c *RollbarCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *RollbarCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *RollbarCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	var reported error
	for _, field := range append(append([]zapcore.Field{}, c.fields...), fields...) {
		if field.Type == zapcore.ErrorType {
			if err, ok := field.Interface.(error); ok {
				reported = err
				continue
			}
		}
		field.AddTo(enc)
	}
	c.reporter.Report(entry.Level, entry.Message, reported, enc.Fields)
	return nil
}

func (c *RollbarCore) Sync() error {
	return nil
}
