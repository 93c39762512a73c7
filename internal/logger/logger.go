// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"
	"os"
)

// Sink represents a logging implementation. It is specifically designed
// to be a subset of go-logr/logr's LogSink interface so that an
// application already using logr, zap, or zerolog can adapt one of those
// into a Sink with a one-line shim, without this package importing any
// of them.
type Sink interface {
	Info(level int, msg string, keysAndValues ...interface{})
}

// stderrSink is the Sink used when the caller doesn't provide one: it
// writes to os.Stderr in a plain "[component] message key=value ..."
// line, matching the shape a real Sink would receive.
type stderrSink struct{}

func (stderrSink) Info(level int, msg string, keysAndValues ...interface{}) {
	fmt.Fprint(os.Stderr, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(os.Stderr, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	fmt.Fprintln(os.Stderr)
}

// Logger dispatches component-scoped log entries to a Sink, gated by a
// per-component Level.
type Logger struct {
	sink  Sink
	level map[Component]Level
}

// New constructs a Logger. A nil sink logs to os.Stderr. Any component
// absent from levels falls back to its MONGODRIVER_LOG_<COMPONENT>
// environment variable, then to MONGODRIVER_LOG_ALL, and then to
// LevelOff.
func New(sink Sink, levels map[Component]Level) *Logger {
	if sink == nil {
		sink = stderrSink{}
	}
	resolved := make(map[Component]Level, len(levels))
	for _, c := range []Component{ComponentTopology, ComponentConnection, ComponentCommand} {
		if lvl, ok := levels[c]; ok {
			resolved[c] = lvl
			continue
		}
		resolved[c] = envLevel(c)
	}
	return &Logger{sink: sink, level: resolved}
}

// Is reports whether level is enabled for component.
func (l *Logger) Is(component Component, level Level) bool {
	if l == nil {
		return false
	}
	return l.level[component] >= level
}

// Print emits msg at level for component if that level is enabled,
// truncating any document-shaped values in keysAndValues.
func (l *Logger) Print(component Component, level Level, msg string, keysAndValues ...interface{}) {
	if !l.Is(component, level) {
		return
	}
	for i := 1; i < len(keysAndValues); i += 2 {
		if s, ok := keysAndValues[i].(string); ok {
			keysAndValues[i] = truncate(s)
		}
	}
	l.sink.Info(int(level), fmt.Sprintf("[%s] %s", component, msg), keysAndValues...)
}
