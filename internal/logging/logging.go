// Package logging builds the component loggers used across reed.
//
// Loggers are plain *log.Logger values with a bracketed component prefix
// ("[daemon] ", "[index] ", ...). When a log file is configured all
// components share one rotating lumberjack sink.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ProjectMoon/reed/internal/config"
)

// Factory hands out prefixed loggers that share a single writer.
type Factory struct {
	out    io.Writer
	closer io.Closer
	once   sync.Once
}

// NewFactory returns a Factory writing to stderr, or to a rotating file when
// cfg.File is set.
func NewFactory(cfg config.Log) *Factory {
	if cfg.File == "" {
		return &Factory{out: os.Stderr}
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Factory{out: lj, closer: lj}
}

// NewWriterFactory returns a Factory writing to w. Useful in tests.
func NewWriterFactory(w io.Writer) *Factory {
	return &Factory{out: w}
}

// Logger returns a logger for component, e.g. Logger("daemon") prefixes
// every line with "[daemon] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared sink.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close flushes and closes the file sink, if any. Safe to call more than once.
func (f *Factory) Close() error {
	var err error
	f.once.Do(func() {
		if f.closer != nil {
			err = f.closer.Close()
		}
	})
	return err
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// OrDefault returns l, or a stderr logger prefixed with component when l is nil.
func OrDefault(l *log.Logger, component string) *log.Logger {
	if l != nil {
		return l
	}
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}
