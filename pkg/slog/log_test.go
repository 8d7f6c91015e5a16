package slog_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	buf := new(bytes.Buffer)
	log, chk := slog.New(buf)
	slog.SetLogLevel(slog.Warn)
	log.I.Ln("hidden")
	log.D.F("hidden %d", 1)
	assert.Equal(t, 0, buf.Len())
	log.W.Ln("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), slog.LevelSpecs[slog.Warn].Name)
	buf.Reset()
	// Chk reports the error even when the level is suppressed.
	assert.True(t, chk.D(errors.New("dummy error as debug")))
	assert.Equal(t, 0, buf.Len())
	assert.False(t, chk.E(nil))
	err := log.I.Err("format string %d '%s'", 5, "testing")
	assert.EqualError(t, err, "format string 5 'testing'")
}

func TestLevelFromString(t *testing.T) {
	for in, want := range map[string]int{
		"off":   slog.Off,
		"FATAL": slog.Fatal,
		"err":   slog.Error,
		"warn":  slog.Warn,
		"info":  slog.Info,
		"inf":   slog.Info,
		"d":     slog.Debug,
		"trace": slog.Trace,
		"t":     slog.Trace,
		"1":     slog.Debug,
	} {
		got, ok := slog.LevelFromString(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := slog.LevelFromString("loud")
	assert.False(t, ok)
	_, ok = slog.LevelFromString("")
	assert.False(t, ok)
}
