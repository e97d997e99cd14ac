// The MIT License (MIT)
//
// Copyright (c) 2013-2016 Oryx(ossrs)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// The libre logger package provides connection-oriented log service.
//		logger.Info.Println(Context, ...)
//		logger.Trace.Println(Context, ...)
//		logger.Warn.Println(Context, ...)
//		logger.Error.Println(Context, ...)
// @remark the Context is optional thus can be nil.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Context is the per-session identity a protocol engine attaches to every
// log line it emits, so a reactor turn touching many connections can still
// be traced back to the one that produced a given line.
type Context interface {
	// Cid returns the current session/connection id.
	Cid() int
}

// loggerPlus adapts a zerolog.Logger to the Println(ctx, a...) calling
// convention the rest of this module uses, so swapping the sink never
// touches a call site.
type loggerPlus struct {
	level zerolog.Level
	base  zerolog.Logger
}

func newLoggerPlus(w io.Writer, level zerolog.Level) *loggerPlus {
	return &loggerPlus{
		level: level,
		base:  zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

func (v *loggerPlus) Println(ctx Context, a ...interface{}) {
	ev := v.base.WithLevel(v.level).Int("pid", os.Getpid())
	if ctx != nil {
		ev = ev.Int("cid", ctx.Cid())
	}
	ev.Msg(sprint(a...))
}

func sprint(a ...interface{}) string {
	s := ""
	for i, v := range a {
		if i > 0 {
			s += " "
		}
		if e, ok := v.(error); ok {
			s += e.Error()
			continue
		}
		if str, ok := v.(string); ok {
			s += str
			continue
		}
		s += fmt.Sprintf("%v", v)
	}
	return s
}

// Logger is the interface every level variable below implements.
type Logger interface {
	// Println logs a, tagged with the connection-oriented ctx (nil to ignore).
	Println(ctx Context, a ...interface{})
}

// Info, the verbose info level, very detail log, the lowest level, to discard.
var Info Logger

// I is an alias for Info.Println.
func I(ctx Context, a ...interface{}) {
	Info.Println(ctx, a...)
}

// Trace, the trace level, something important, the default log level, to stdout.
var Trace Logger

// T is an alias for Trace.Println.
func T(ctx Context, a ...interface{}) {
	Trace.Println(ctx, a...)
}

// Warn, the warning level, dangerous information, to stderr.
var Warn Logger

// W is an alias for Warn.Println.
func W(ctx Context, a ...interface{}) {
	Warn.Println(ctx, a...)
}

// Error, the error level, fatal error things, to stderr.
var Error Logger

// E is an alias for Error.Println.
func E(ctx Context, a ...interface{}) {
	Error.Println(ctx, a...)
}

func init() {
	Info = newLoggerPlus(io.Discard, zerolog.InfoLevel)
	Trace = newLoggerPlus(os.Stdout, zerolog.TraceLevel)
	Warn = newLoggerPlus(os.Stderr, zerolog.WarnLevel)
	Error = newLoggerPlus(os.Stderr, zerolog.ErrorLevel)
}

// Switch redirects Trace/Warn/Error (Info remains discarded) to w.
// @remark user must close previous io for logger never close it.
func Switch(w io.Writer) {
	Trace = newLoggerPlus(w, zerolog.TraceLevel)
	Warn = newLoggerPlus(w, zerolog.WarnLevel)
	Error = newLoggerPlus(w, zerolog.ErrorLevel)

	if c, ok := w.(io.Closer); ok {
		previousIo = c
	}
}

// previousIo is the underlayer io for logger, closed by Close.
var previousIo io.Closer

// Close cleans up the logger, discarding any log until switched to a fresh writer.
func Close() (err error) {
	Info = newLoggerPlus(io.Discard, zerolog.InfoLevel)
	Trace = newLoggerPlus(io.Discard, zerolog.TraceLevel)
	Warn = newLoggerPlus(io.Discard, zerolog.WarnLevel)
	Error = newLoggerPlus(io.Discard, zerolog.ErrorLevel)

	if previousIo != nil {
		err = previousIo.Close()
		previousIo = nil
	}

	return
}
