// Package logx builds the loggers used across boardsync. Interactive
// commands log to stderr; the daemon can route to a size-rotated file.
package logx

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a stderr logger with the given bracketed prefix, e.g.
// "[daemon] ".
func New(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// NewRotating returns a logger writing to path with size-based rotation.
// An empty path falls back to stderr. The returned closer flushes the
// rotating writer; it is a no-op for the stderr fallback.
func NewRotating(prefix, path string) (*log.Logger, io.Closer) {
	if path == "" {
		return New(prefix), nopCloser{}
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return log.New(w, prefix, log.LstdFlags), w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
