// Package slog is a simple leveled logger with colored level tags and code
// locations appended to each line, so a log print can be tracked back to the
// print site.
//
// The log level is read from the GODEBUG environment variable at startup and
// can be changed at runtime with SetLogLevel.
package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

// Log levels, lowest print priority first.
const (
	Off int32 = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

func init() {
	switch strings.ToUpper(os.Getenv("GODEBUG")) {
	case "1", "TRUE", "ON", "DEBUG":
		SetLogLevel(Debug)
	case "TRACE":
		SetLogLevel(Trace)
	case "INFO":
		SetLogLevel(Info)
	case "WARN":
		SetLogLevel(Warn)
	case "ERROR":
		SetLogLevel(Error)
	case "FATAL":
		SetLogLevel(Fatal)
	case "0", "OFF", "FALSE":
		SetLogLevel(Off)
	default:
		SetLogLevel(Info)
	}
}

type (
	// Ln prints a list of values separated by spaces.
	Ln func(a ...any)
	// F prints like fmt.Printf surrounded by log details.
	F func(format string, a ...any)
	// S prints a spew.Sdump of the given values.
	S func(a ...any)
	// C accepts a closure so expensive renders are skipped when the level is
	// not being printed.
	C func(closure func() string)
	// Chk prints and returns true if there is an error, otherwise returns
	// false, so it can be used inside an if condition.
	Chk func(err error) bool
	// Err constructs an error with fmt.Errorf, prints it, and returns it.
	Err func(format string, a ...any) error

	// LevelPrinter is the set of printing primitives available at each log
	// level.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}

	// LevelSpec gives each level its name tag and colorizer.
	LevelSpec struct {
		Name      string
		Colorizer func(a ...any) string
	}
)

// Log is a set of level printers. The fields are one-letter so that call
// sites stay short: log.E.Ln(err), log.D.F("got %d", n), etc.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the collection of Chk functions from a Log, conventionally bound
// to a variable named chk so error gates read as if chk.E(err) { return }.
type Check struct {
	F, E, W, I, D, T Chk
}

var (
	currentLevel atomic.Int32

	// LevelSpecs indexes name and color by level constant.
	LevelSpecs = []LevelSpec{
		{"   ", color.Bit24(0, 0, 0, false).Sprint},
		{"FTL", color.Bit24(128, 0, 0, false).Sprint},
		{"ERR", color.Bit24(255, 0, 0, false).Sprint},
		{"WRN", color.Bit24(255, 128, 0, false).Sprint},
		{"INF", color.Bit24(255, 255, 0, false).Sprint},
		{"DBG", color.Bit24(0, 125, 255, false).Sprint},
		{"TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
)

// SetLogLevel sets the level above which printers become no-ops.
func SetLogLevel(l int32) { currentLevel.Store(l) }

// GetLogLevel returns the current print threshold.
func GetLogLevel() int32 { return currentLevel.Load() }

// New returns a Log and its Check set writing to the given writer. The
// conventional use is a package scoped:
//
//	var log, chk = slog.New(os.Stderr)
func New(writer io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: getPrinter(Fatal, writer),
		E: getPrinter(Error, writer),
		W: getPrinter(Warn, writer),
		I: getPrinter(Info, writer),
		D: getPrinter(Debug, writer),
		T: getPrinter(Trace, writer),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

func joinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func getLoc(skip int) string {
	_, file, line, _ := runtime.Caller(skip)
	return color.Bit24(0, 128, 255, false).Sprint(file, ":", line)
}

func printIt(w io.Writer, level int32, text string) {
	_, _ = fmt.Fprintf(w, "%s %s %s\n",
		LevelSpecs[level].Colorizer(LevelSpecs[level].Name), text, getLoc(3))
}

func getPrinter(level int32, w io.Writer) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...any) {
			if currentLevel.Load() < level {
				return
			}
			printIt(w, level, joinStrings(a...))
		},
		F: func(format string, a ...any) {
			if currentLevel.Load() < level {
				return
			}
			printIt(w, level, fmt.Sprintf(format, a...))
		},
		S: func(a ...any) {
			if currentLevel.Load() < level {
				return
			}
			printIt(w, level, spew.Sdump(a...))
		},
		C: func(closure func() string) {
			if currentLevel.Load() < level {
				return
			}
			printIt(w, level, closure())
		},
		Chk: func(err error) bool {
			if err == nil {
				return false
			}
			if currentLevel.Load() >= level {
				printIt(w, level, err.Error())
			}
			return true
		},
		Err: func(format string, a ...any) error {
			if currentLevel.Load() >= level {
				printIt(w, level, fmt.Sprintf(format, a...))
			}
			return fmt.Errorf(format, a...)
		},
	}
}
