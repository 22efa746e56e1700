package main

import (
	"testing"

	"github.com/nircnet/nirc/pkg/slog"
	"github.com/stretchr/testify/assert"
)

// go-arg discovers the version string through a method on the flags struct,
// so it must be declared on the named config type.
func TestVersionString(t *testing.T) {
	assert.Equal(t, "nirc v0.1.0", config{}.Version())
}

func TestLevelFromName(t *testing.T) {
	assert.Equal(t, slog.Trace, levelFromName("trace"))
	assert.Equal(t, slog.Error, levelFromName("ERROR"))
	assert.Equal(t, slog.Warn, levelFromName("not a level"))
}
