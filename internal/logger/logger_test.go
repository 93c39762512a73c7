// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "testing"

type recordingSink struct {
	calls []string
}

func (r *recordingSink) Info(level int, msg string, keysAndValues ...interface{}) {
	r.calls = append(r.calls, msg)
}

func TestPrintGatedByLevel(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, map[Component]Level{ComponentTopology: LevelInfo})

	l.Print(ComponentTopology, LevelDebug, "should be suppressed")
	if len(sink.calls) != 0 {
		t.Fatalf("expected debug message to be suppressed at info level")
	}

	l.Print(ComponentTopology, LevelInfo, "should print")
	if len(sink.calls) != 1 {
		t.Fatalf("expected one message to be printed, got %d", len(sink.calls))
	}
}

func TestIsRespectsPerComponentLevel(t *testing.T) {
	l := New(nil, map[Component]Level{
		ComponentTopology:   LevelDebug,
		ComponentConnection: LevelOff,
	})
	if !l.Is(ComponentTopology, LevelDebug) {
		t.Fatalf("expected topology debug to be enabled")
	}
	if l.Is(ComponentConnection, LevelInfo) {
		t.Fatalf("expected connection info to be disabled")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"info":  LevelInfo,
		"DEBUG": LevelDebug,
		"trace": LevelDebug,
		"":      LevelOff,
		"bogus": LevelOff,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
