// Package gitvanlog provides small namespaced loggers for GitVan's internal
// packages. It mirrors the teacher's logger.New(name) call-site shape
// (Printf/Print, stderr-only, env-gated verbosity) since that package was
// not retrievable from the example pack — see DESIGN.md.
package gitvanlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// verboseEnv, when set to a non-empty value other than "0" or "false",
// enables Printf output. Print (the always-on line) is unaffected.
const verboseEnv = "GITVAN_VERBOSE"

var (
	mu      sync.RWMutex
	out     io.Writer = os.Stderr
	verbose           = isVerbose()
)

func isVerbose() bool {
	v := os.Getenv(verboseEnv)
	return v != "" && v != "0" && v != "false"
}

// SetOutput redirects all loggers' output; used by tests to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetVerbose overrides the env-derived verbosity flag, for tests.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// Logger is a namespaced writer to stderr, gated by GITVAN_VERBOSE for
// Printf-level detail. Print always writes (used for single load-bearing
// status lines a caller wants regardless of verbosity).
type Logger struct {
	name string
}

// New returns a Logger namespaced under name, e.g. "resolve:dag".
func New(name string) *Logger {
	return &Logger{name: name}
}

// Printf writes a formatted line when verbose logging is enabled.
func (l *Logger) Printf(format string, args ...any) {
	mu.RLock()
	v, w := verbose, out
	mu.RUnlock()
	if !v {
		return
	}
	writeLine(w, l.name, fmt.Sprintf(format, args...))
}

// Print writes a line unconditionally.
func (l *Logger) Print(args ...any) {
	mu.RLock()
	w := out
	mu.RUnlock()
	writeLine(w, l.name, fmt.Sprint(args...))
}

func writeLine(w io.Writer, name, msg string) {
	logger := log.New(w, "["+name+"] ", log.LstdFlags)
	logger.Print(msg)
}
