package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Pipeline", "hidden %d", 1)
	l.Warn("Pipeline", "shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [Pipeline] shown 2")
}

func TestModuleLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf, false)
	l.SetModuleLevel("Coordinator", DEBUG)
	l.SetModuleLevel("Source", ERROR)

	l.Debug("Coordinator", "stage timings")
	l.Debug("Pipeline", "not this one")
	l.Warn("Source", "suppressed")

	out := buf.String()
	assert.Contains(t, out, "stage timings")
	assert.NotContains(t, out, "not this one")
	assert.NotContains(t, out, "suppressed")

	l.ClearModuleLevel("Source")
	l.Warn("Source", "back again")
	assert.Contains(t, buf.String(), "back again")
}

func TestModuleHandle(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, true)
	m := l.Module("Motion")

	m.Info("regions=%d", 3)

	out := buf.String()
	assert.Equal(t, "Motion", m.Name())
	assert.Contains(t, out, "[Motion] regions=3")
	assert.True(t, strings.Contains(out, levelColors[INFO]), "colour prefix expected")
}

func TestUnboundModuleBeforeInitIsSilent(t *testing.T) {
	if Default() != nil {
		t.Skip("default logger already installed by another test")
	}
	m := For("Anything")
	assert.NotPanics(t, func() { m.Error("nobody listens") })
}

func TestSilentLevelWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Main", "boom")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelTextRoundTrip(t *testing.T) {
	var lvl LogLevel
	require.NoError(t, lvl.UnmarshalText([]byte("warn")))
	assert.Equal(t, WARN, lvl)

	text, err := lvl.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "WARN", string(text))

	assert.Error(t, lvl.UnmarshalText([]byte("??")))
}
