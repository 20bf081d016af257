package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type capturedReport struct {
	level  zapcore.Level
	msg    string
	err    error
	extras map[string]interface{}
}

type fakeReporter struct {
	reports []capturedReport
}

func (f *fakeReporter) Report(level zapcore.Level, msg string, err error, extras map[string]interface{}) {
	f.reports = append(f.reports, capturedReport{level: level, msg: msg, err: err, extras: extras})
}

func TestRollbarCoreForwardsErrorsOnly(t *testing.T) {
	reporter := &fakeReporter{}
	log := zap.New(NewRollbarCore(reporter, zapcore.ErrorLevel)).With(zap.String("component", "results"))

	log.Info("ignored")
	log.Warn("ignored too")
	boom := errors.New("lock schedule: deadlock")
	log.Error("enter results failed", zap.Error(boom), zap.String("schedule_id", "sch-1"))

	require.Len(t, reporter.reports, 1)
	got := reporter.reports[0]
	assert.Equal(t, zapcore.ErrorLevel, got.level)
	assert.Equal(t, "enter results failed", got.msg)
	assert.Same(t, boom, got.err)
	assert.Equal(t, "sch-1", got.extras["schedule_id"])
	assert.Equal(t, "results", got.extras["component"])
}
