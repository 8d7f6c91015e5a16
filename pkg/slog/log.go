// Package slog is the levelled logger used across reflectr. Each package
// creates its printers with New and checks errors inline with the returned
// Check, in the form:
//
//	if err = f(); chk.E(err) {
//		return
//	}
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

var l = GetStd()

func GetStd() (ll *Log) {
	ll, _ = New(os.Stdout)
	return
}

func init() {
	if lvl, ok := LevelFromString(os.Getenv("GODEBUG")); ok {
		SetLogLevel(lvl)
		l.D.Ln("printing logs at this level and lower")
		return
	}
	SetLogLevel(Info)
}

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

type (
	// Ln prints lists of interfaces with spaces in between
	Ln func(a ...interface{})
	// F prints like fmt.Println surrounded by log details
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice
	S func(a ...interface{})
	// C accepts a function so that the extra computation can be avoided if it is
	// not being viewed
	C func(closure func() string)
	// Chk is a shortcut for printing if there is an error, or returning true
	Chk func(e error) bool
	// Err is a pass-through function that uses fmt.Errorf to construct an error
	// and returns the error after printing it to the log
	Err func(format string, a ...interface{}) error
	// LevelPrinter is the set of printing primitives for one level. Output
	// carries the level tag and the code location of the caller.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}
	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel atomic.Int32
	// LevelSpecs specifies the id, string name and color-printing function
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(0, 255, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
	// levelNames are the accepted spellings for LevelFromString.
	levelNames = map[string]int{
		"off": Off, "0": Off, "false": Off,
		"fatal": Fatal,
		"error": Error,
		"warn":  Warn, "warning": Warn,
		"info":  Info,
		"debug": Debug, "1": Debug, "true": Debug, "on": Debug,
		"trace": Trace,
	}
)

// Log is a set of log printers for the various Level items.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

type Check struct {
	F, E, W, I, D, T Chk
}

func JoinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func enabled(lvl int32) bool { return lvl <= currentLevel.Load() }

func GetPrinter(lvl int32, writer io.Writer) LevelPrinter {
	out := func(text string) {
		fmt.Fprintf(writer,
			"%s %s %s\n",
			LevelSpecs[lvl].Colorizer(LevelSpecs[lvl].Name),
			text,
			GetLoc(3),
		)
	}
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			if enabled(lvl) {
				out(JoinStrings(a...))
			}
		},
		F: func(format string, a ...interface{}) {
			if enabled(lvl) {
				out(fmt.Sprintf(format, a...))
			}
		},
		S: func(a ...interface{}) {
			if enabled(lvl) {
				out(spew.Sdump(a...))
			}
		},
		C: func(closure func() string) {
			if enabled(lvl) {
				out(closure())
			}
		},
		Chk: func(e error) bool {
			if e != nil {
				if enabled(lvl) {
					out(e.Error())
				}
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			err := fmt.Errorf(format, a...)
			if enabled(lvl) {
				out(err.Error())
			}
			return err
		},
	}
}

func New(writer io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: GetPrinter(Fatal, writer),
		E: GetPrinter(Error, writer),
		W: GetPrinter(Warn, writer),
		I: GetPrinter(Info, writer),
		D: GetPrinter(Debug, writer),
		T: GetPrinter(Trace, writer),
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

// SetLogLevel sets the highest level that is printed.
func SetLogLevel(l int) {
	currentLevel.Store(int32(l))
}

func GetLogLevel() (l int) {
	return int(currentLevel.Load())
}

// LevelFromString maps a level name (off, fatal, error, warn, info, debug,
// trace, case insensitive) to its level. A prefix long enough to be
// unambiguous is accepted, so "t" is trace and "inf" is info.
func LevelFromString(s string) (lvl int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return
	}
	if lvl, ok = levelNames[s]; ok {
		return
	}
	for i := range LevelSpecs {
		name := strings.ToLower(LevelSpecs[i].Name)
		if i > Off && strings.HasPrefix(name, s) {
			return i, true
		}
	}
	for name, v := range levelNames {
		if len(s) > 1 && strings.HasPrefix(name, s) {
			return v, true
		}
	}
	return
}

// SetLevelString sets the log level from a name, leaving it unchanged and
// returning false if the name is not recognised.
func SetLevelString(s string) (ok bool) {
	var lvl int
	if lvl, ok = LevelFromString(s); ok {
		SetLogLevel(lvl)
	}
	return
}

func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	output = color.Bit24(0, 128, 255, false).Sprint(
		file, ":", line,
	)
	return
}
