package logging

import (
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggers(t *testing.T) {
	loggers := MakeDefaultLoggers()
	assert.Equal(t, ldlog.Info, loggers.GetMinLevel())
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []ldlog.LogLevel{ldlog.Debug, ldlog.Info, ldlog.Warn, ldlog.Error, ldlog.None} {
		parsed, ok := ParseLogLevel(level.Name())
		assert.True(t, ok)
		assert.Equal(t, level, parsed)
	}

	parsed, ok := ParseLogLevel(" WARN ")
	assert.True(t, ok)
	assert.Equal(t, ldlog.Warn, parsed)

	_, ok = ParseLogLevel("verbose")
	assert.False(t, ok)
}
