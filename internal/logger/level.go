// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger is the driver's internal structured-logging sink: a
// minimal interface (deliberately a subset of go-logr/logr's shape) that
// lets an application wire in whatever logging library it already uses,
// without this package depending on one.
package logger

import (
	"os"
	"strings"
)

// Level is a log severity, ordered so that higher values are more
// verbose.
type Level int

const (
	LevelOff Level = iota
	LevelInfo
	LevelDebug
)

// ParseLevel maps an environment-variable literal to a Level, defaulting
// to LevelOff for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LevelInfo
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelOff
	}
}

// Component identifies which subsystem emitted a log entry.
type Component string

const (
	ComponentTopology   Component = "topology"
	ComponentConnection Component = "connection"
	ComponentCommand    Component = "command"
)

const envPrefix = "MONGODRIVER_LOG_"

// envLevel reads MONGODRIVER_LOG_<COMPONENT> (or MONGODRIVER_LOG_ALL as
// a fallback) from the environment.
func envLevel(c Component) Level {
	if v := os.Getenv(envPrefix + strings.ToUpper(string(c))); v != "" {
		return ParseLevel(v)
	}
	if v := os.Getenv(envPrefix + "ALL"); v != "" {
		return ParseLevel(v)
	}
	return LevelOff
}

// maxDocumentLength bounds how much of a stringified document a log
// entry carries before it is truncated, mirroring the source's
// truncation behavior so structured logs stay readable.
const maxDocumentLength = 1000

// truncationSuffix marks where a logged value was cut short.
const truncationSuffix = "..."

func truncate(s string) string {
	if len(s) <= maxDocumentLength {
		return s
	}
	return s[:maxDocumentLength] + truncationSuffix
}
