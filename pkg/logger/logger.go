package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options controls where and how log lines are written.
type Options struct {
	Level string
	// File, when set, receives JSON log lines instead of stderr.
	File string
	// Console forces human readable output even when stderr is not a terminal.
	Console bool
}

var (
	mu      sync.RWMutex
	base    = newLogger(os.Stderr, false)
	logFile *os.File
)

func newLogger(w io.Writer, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Init configures the package logger. It can be called more than once; a
// previously opened log file is closed.
func Init(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("logger: parse level %q: %w", opts.Level, err)
		}
		level = l
	}

	var (
		out     io.Writer = os.Stderr
		console           = opts.Console || term.IsTerminal(int(os.Stderr.Fd()))
		f       *os.File
	)
	if opts.File != "" {
		var err error
		f, err = os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open %s: %w", opts.File, err)
		}
		out = f
		console = false
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	base = newLogger(out, console).Level(level)
	return nil
}

// SetOutput redirects log lines to w as JSON. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(w).With().Timestamp().Logger().Level(base.GetLevel())
}

// SetLevel changes the minimum level without touching the output.
func SetLevel(level string) error {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	mu.Lock()
	base = base.Level(l)
	mu.Unlock()
	return nil
}

// Close releases the log file opened by Init, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	base = newLogger(os.Stderr, false).Level(base.GetLevel())
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func write(ev *zerolog.Event, component, msg string, fields map[string]interface{}) {
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

func Debug(msg string) { DebugCF("", msg, nil) }
func Info(msg string)  { InfoCF("", msg, nil) }
func Warn(msg string)  { WarnCF("", msg, nil) }
func Error(msg string) { ErrorCF("", msg, nil) }

func DebugC(component, msg string) { DebugCF(component, msg, nil) }
func InfoC(component, msg string)  { InfoCF(component, msg, nil) }
func WarnC(component, msg string)  { WarnCF(component, msg, nil) }
func ErrorC(component, msg string) { ErrorCF(component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	l := current()
	write(l.Debug(), component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	l := current()
	write(l.Info(), component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	l := current()
	write(l.Warn(), component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	l := current()
	write(l.Error(), component, msg, fields)
}
