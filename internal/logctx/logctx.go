// Package logctx is the operational logging helper SPEC_FULL.md §4.0
// promises: compaction start/finish and corruption-tolerated-because-
// paranoid_checks-is-off messages go through here. It generalizes the
// teacher's utils/error.go#location (runtime.Caller file:line prefix,
// printed with fmt.Printf/log.Fatalf) into a small reusable logger
// rather than the free functions the teacher scatters across utils, but
// keeps the teacher's choice of carrying this on the standard library:
// no logging library appears anywhere in the retrieved corpus.
package logctx

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// Logger prefixes every line with the caller's file:line, the way
// utils/error.go#location does, then writes through a standard
// log.Logger.
type Logger struct {
	out *log.Logger
}

// New returns a Logger with the given prefix (e.g. "directory: "),
// writing to os.Stderr.
func New(prefix string) *Logger {
	return &Logger{out: log.New(os.Stderr, prefix, log.LstdFlags)}
}

// Infof logs an operational message, e.g. compaction start/finish.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.out.Printf(location(2)+" "+format, args...)
}

// Warnf logs a degraded-but-continuing condition, e.g. an unrecognized
// filter tag tolerated because paranoid_checks is off (spec.md §7/§9).
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.out.Printf(location(2)+" WARN "+format, args...)
}

func location(deep int) string {
	_, file, line, ok := runtime.Caller(deep)
	if !ok {
		return "???:0"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
