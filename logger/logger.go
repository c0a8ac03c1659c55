/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger is the structured logging façade every component in this
// module takes at construction instead of calling the global log package
// directly. It wraps logrus, carries per-call structured
// fields (logger/fields), and exposes a level gate (logger/level).
package logger

import (
	"io"
	stdlog "log"
	"sync"

	"github.com/sirupsen/logrus"

	loglvl "github.com/nabbar/httpcore/logger/level"
)

// Re-exported so callers of the hclog adapter and other components can refer
// to severity levels through this package alone.
const (
	NilLevel    = loglvl.NilLevel
	PanicLevel  = loglvl.PanicLevel
	FatalLevel  = loglvl.FatalLevel
	ErrorLevel  = loglvl.ErrorLevel
	WarnLevel   = loglvl.WarnLevel
	InfoLevel   = loglvl.InfoLevel
	DebugLevel  = loglvl.DebugLevel
)

type Level = loglvl.Level

// Options controls behavior orthogonal to level/fields: EnableTrace, which
// the hclog adapter reports through IsTrace (Debug calls attach no stack
// trace), and the writer that backs Write/WriteCloser.
type Options struct {
	EnableTrace bool
	Output      io.Writer
}

// Logger is the logging interface every component takes at construction.
// Fields carried via WithFields/SetFields are attached to every subsequent
// call until replaced.
type Logger interface {
	io.WriteCloser

	SetLevel(lvl Level)
	GetLevel() Level

	SetOptions(o Options)
	GetOptions() Options

	SetFields(f Fields)
	GetFields() Fields

	Debug(msg string, err error, args ...interface{})
	Info(msg string, err error, args ...interface{})
	Warning(msg string, err error, args ...interface{})
	Error(msg string, err error, args ...interface{})

	// WithFields returns a derived Logger carrying f merged over the
	// receiver's current fields, without mutating the receiver.
	WithFields(f Fields) Logger

	// Entry returns the underlying logrus entry, for components (e.g. the
	// hclog adapter) that need direct access.
	Entry() *logrus.Entry

	// GetStdLogger returns a standard library *log.Logger that writes
	// through this logger at the given level, for libraries that only
	// accept a *log.Logger.
	GetStdLogger(lvl Level, flags int) *stdlog.Logger
}

// Fields is the structured key/value set attached to log entries, built with
// NewFields. It shares the Add/Logrus method names of logger/fields.Fields,
// but a logger/fields.Fields value does not satisfy it: that type's Add
// returns logger/fields.Fields, not this Fields.
type Fields interface {
	Add(key string, val interface{}) Fields
	Logrus() logrus.Fields
}

type mapFields logrus.Fields

// NewFields returns an empty Fields backed by a plain map, for callers that
// do not need logger/fields' context-lifecycle integration.
func NewFields() Fields {
	return mapFields{}
}

func (f mapFields) Add(key string, val interface{}) Fields {
	n := make(mapFields, len(f)+1)
	for k, v := range f {
		n[k] = v
	}
	n[key] = val
	return n
}

func (f mapFields) Logrus() logrus.Fields {
	return logrus.Fields(f)
}

type logger struct {
	mu     sync.RWMutex
	entry  *logrus.Logger
	fields Fields
	opts   Options
}

// New returns a Logger backed by a fresh logrus.Logger writing to w (or
// os.Stderr if w is nil), at the given initial level.
func New(w io.Writer, lvl Level) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if w != nil {
		l.SetOutput(w)
	}
	l.SetLevel(lvl.Logrus())

	return &logger{
		entry:  l,
		fields: NewFields(),
		opts:   Options{Output: w},
	}
}

func (l *logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.SetLevel(lvl.Logrus())
}

func (l *logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch l.entry.GetLevel() {
	case logrus.PanicLevel:
		return PanicLevel
	case logrus.FatalLevel:
		return FatalLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.DebugLevel, logrus.TraceLevel:
		return DebugLevel
	default:
		return NilLevel
	}
}

func (l *logger) SetOptions(o Options) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts = o
	if o.Output != nil {
		l.entry.SetOutput(o.Output)
	}
}

func (l *logger) GetOptions() Options {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts
}

func (l *logger) SetFields(f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f == nil {
		f = NewFields()
	}
	l.fields = f
}

func (l *logger) GetFields() Fields {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fields
}

func (l *logger) entryWithFields(err error) *logrus.Entry {
	l.mu.RLock()
	f := l.fields
	l.mu.RUnlock()

	e := l.entry.WithFields(f.Logrus())
	if err != nil {
		e = e.WithError(err)
	}
	return e
}

func (l *logger) Debug(msg string, err error, args ...interface{}) {
	l.entryWithFields(err).Debug(append([]interface{}{msg}, args...)...)
}

func (l *logger) Info(msg string, err error, args ...interface{}) {
	l.entryWithFields(err).Info(append([]interface{}{msg}, args...)...)
}

func (l *logger) Warning(msg string, err error, args ...interface{}) {
	l.entryWithFields(err).Warn(append([]interface{}{msg}, args...)...)
}

func (l *logger) Error(msg string, err error, args ...interface{}) {
	l.entryWithFields(err).Error(append([]interface{}{msg}, args...)...)
}

func (l *logger) WithFields(f Fields) Logger {
	l.mu.RLock()
	cur := l.fields
	l.mu.RUnlock()

	merged := cur
	if lf, ok := f.(mapFields); ok {
		for k, v := range lf {
			merged = merged.Add(k, v)
		}
	} else if f != nil {
		for k, v := range f.Logrus() {
			merged = merged.Add(k, v)
		}
	}

	return &logger{entry: l.entry, fields: merged, opts: l.opts}
}

func (l *logger) Entry() *logrus.Entry {
	return l.entryWithFields(nil)
}

func (l *logger) GetStdLogger(lvl Level, flags int) *stdlog.Logger {
	return stdlog.New(l.entry.WriterLevel(lvl.Logrus()), "", flags)
}

// Write implements io.Writer so Logger can be used as a sink (e.g. for
// libraries that want an io.Writer to log through).
func (l *logger) Write(p []byte) (int, error) {
	l.entryWithFields(nil).Info(string(p))
	return len(p), nil
}

// Close implements io.Closer; logrus.Logger itself holds no resource beyond
// its configured output, which this package does not own the lifecycle of.
func (l *logger) Close() error {
	return nil
}
