// Package logging provides the process-wide structured logger plus the
// flat append-only debug trace file described by the store's C9 contract.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process-wide logger.
type Config struct {
	Debug bool
	// StateDir is where the flat debug log and spell-ignore file live,
	// e.g. $XDG_STATE_HOME/ratmail.
	StateDir string
}

var (
	base        zerolog.Logger
	baseReadyMu sync.Mutex
	baseReady   bool
	initOnce    sync.Once
)

// Init builds the process-wide zerolog.Logger. Safe to call once; later
// calls are no-ops so accidental re-init never replaces the live logger.
func Init(cfg Config) {
	initOnce.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Debug {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)

		var w zerolog.ConsoleWriter
		if cfg.Debug {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
			base = zerolog.New(w).With().Timestamp().Logger()
		} else {
			base = zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
		}
		baseReadyMu.Lock()
		baseReady = true
		baseReadyMu.Unlock()
		setStateDir(cfg.StateDir)
	})
}

// WithComponent returns a child logger tagged with the given component name.
// Valid before Init is called; it lazily falls back to a stderr logger with
// no level of its own (zerolog's global level applies) so packages can hold
// a component logger at construction time.
func WithComponent(name string) zerolog.Logger {
	baseReadyMu.Lock()
	if !baseReady {
		base = zerolog.New(os.Stderr).With().Timestamp().Logger()
		baseReady = true
	}
	baseReadyMu.Unlock()
	return base.With().Str("component", name).Logger()
}

// --- C9 flat append-only debug log ---
// Gated on RATMAIL_LOG; lazily opens a single process-wide file handle
// guarded by a mutex, and writes "[unix_ts] message" lines.

var (
	traceMu   sync.Mutex
	traceFile *os.File
	traceDir  string
)

func setStateDir(dir string) {
	traceMu.Lock()
	defer traceMu.Unlock()
	traceDir = dir
}

// StateDir returns the configured state directory, resolving the XDG
// default when none was set via Init.
func StateDir() string {
	traceMu.Lock()
	dir := traceDir
	traceMu.Unlock()
	if dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ratmail")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "ratmail")
}

// Trace appends a line to the flat debug log when RATMAIL_LOG is set.
// No-op otherwise, so production runs never pay for file I/O.
func Trace(format string, args ...any) {
	if os.Getenv("RATMAIL_LOG") == "" {
		return
	}
	traceMu.Lock()
	defer traceMu.Unlock()

	if traceFile == nil {
		dir := StateDir()
		if err := os.MkdirAll(dir, 0700); err != nil {
			return
		}
		f, err := os.OpenFile(filepath.Join(dir, "ratmail.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return
		}
		traceFile = f
	}

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(traceFile, "[%d] %s\n", time.Now().Unix(), msg)
}

// CloseTrace flushes and closes the flat debug log, if open. Intended for
// use at process shutdown.
func CloseTrace() error {
	traceMu.Lock()
	defer traceMu.Unlock()
	if traceFile == nil {
		return nil
	}
	err := traceFile.Close()
	traceFile = nil
	return err
}
