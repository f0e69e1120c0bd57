// Package monitoring carries the diagnostic logger used by every pipeline
// component.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes a diagnostic line through the current logger. It defaults to
// log.Printf.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		logf = func(string, ...interface{}) {}
		return
	}
	logf = f
}

// Logger prefixes lines with a component tag such as "[planner]".
type Logger struct {
	prefix string
}

// For returns a Logger tagged with component and, when non-empty, a session id.
func For(component, session string) Logger {
	if session == "" {
		return Logger{prefix: fmt.Sprintf("[%s] ", component)}
	}
	return Logger{prefix: fmt.Sprintf("[%s %s] ", component, session)}
}

// Logf writes a tagged line.
func (l Logger) Logf(format string, v ...interface{}) {
	Logf(l.prefix+format, v...)
}
