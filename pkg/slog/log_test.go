package slog_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/nircnet/nirc/pkg/slog"
)

func TestPrinters(t *testing.T) {
	var buf bytes.Buffer
	log, chk := slog.New(&buf)
	slog.SetLogLevel(slog.Trace)
	log.T.Ln("testing log level", slog.LevelSpecs[slog.Trace].Name)
	log.D.Ln("testing log level", slog.LevelSpecs[slog.Debug].Name)
	log.I.Ln("testing log level", slog.LevelSpecs[slog.Info].Name)
	log.W.Ln("testing log level", slog.LevelSpecs[slog.Warn].Name)
	log.E.F("testing log level %s", slog.LevelSpecs[slog.Error].Name)
	log.F.Ln("testing log level", slog.LevelSpecs[slog.Fatal].Name)
	if !chk.E(errors.New("dummy error")) {
		t.Fatal("Chk must return true on error")
	}
	if chk.E(nil) {
		t.Fatal("Chk must return false on nil")
	}
	if log.I.Err("format string %d '%s'", 5, "testing") == nil {
		t.Fatal("Err must return a non-nil error")
	}
	if !strings.Contains(buf.String(), "format string 5 'testing'") {
		t.Fatal("Err output missing from log writer")
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	log, _ := slog.New(&buf)
	slog.SetLogLevel(slog.Error)
	log.D.Ln("should not print")
	if buf.Len() != 0 {
		t.Fatal("debug printed while level set to error")
	}
	log.E.Ln("should print")
	if buf.Len() == 0 {
		t.Fatal("error did not print at error level")
	}
}
