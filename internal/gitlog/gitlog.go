// Package gitlog is the background logger shared by pkg/server and
// pkg/httpapi: callers push records onto a buffered channel and never block
// on file I/O, a drain goroutine formats and writes them with logrus.
package gitlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Record is one log entry. Fields are rendered as logrus structured fields.
type Record struct {
	Level  logrus.Level
	Msg    string
	Fields logrus.Fields
}

// Logger drains Records from a buffered channel in its own goroutine. Senders
// call Infof/Errorf/Warnf, which never block on the underlying writer; the
// channel is closed and the drain goroutine joined by Close.
type Logger struct {
	out     *logrus.Logger
	records chan Record
	wg      sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// Config controls where records land and how full the channel buffer is
// allowed to get before a send drops the record rather than blocking.
type Config struct {
	Output     io.Writer // defaults to os.Stderr
	BufferSize int       // defaults to 1024
	Level      logrus.Level
}

// New starts the drain goroutine and returns a ready Logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	out := logrus.New()
	out.SetOutput(cfg.Output)
	out.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	out.SetLevel(cfg.Level)

	l := &Logger{
		out:     out,
		records: make(chan Record, cfg.BufferSize),
		closed:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for rec := range l.records {
		entry := l.out.WithFields(rec.Fields)
		entry.Log(rec.Level, rec.Msg)
	}
}

// send enqueues rec without blocking. A full buffer drops the record rather
// than stalling the caller — this logger backs request-serving goroutines
// that must never wait on log I/O.
func (l *Logger) send(rec Record) {
	select {
	case l.records <- rec:
	default:
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.send(Record{Level: logrus.InfoLevel, Msg: fmt.Sprintf(format, args...)})
}

func (l *Logger) Warnf(format string, args ...any) {
	l.send(Record{Level: logrus.WarnLevel, Msg: fmt.Sprintf(format, args...)})
}

func (l *Logger) Errorf(format string, args ...any) {
	l.send(Record{Level: logrus.ErrorLevel, Msg: fmt.Sprintf(format, args...)})
}

// WithFields returns a helper bound to fields, for repo/remote-address
// annotated log lines.
func (l *Logger) WithFields(fields logrus.Fields) *FieldLogger {
	return &FieldLogger{l: l, fields: fields}
}

// FieldLogger carries a fixed field set across several related log calls.
type FieldLogger struct {
	l      *Logger
	fields logrus.Fields
}

func (f *FieldLogger) Infof(format string, args ...any) {
	f.l.send(Record{Level: logrus.InfoLevel, Msg: fmt.Sprintf(format, args...), Fields: f.fields})
}

func (f *FieldLogger) Errorf(format string, args ...any) {
	f.l.send(Record{Level: logrus.ErrorLevel, Msg: fmt.Sprintf(format, args...), Fields: f.fields})
}

// Close closes the record channel and waits for the drain goroutine to
// flush and exit. Safe to call more than once.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.records)
		l.wg.Wait()
		close(l.closed)
	})
}
