// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongoerr collects the driver's error taxonomy: the kinds of
// failure that can cross a package boundary, shared so that a caller can
// type-switch or errors.As against one of these regardless of which
// subsystem produced it.
package mongoerr

import "fmt"

// ArgumentError indicates caller-supplied input was invalid: a malformed
// URI, an unrecognized option, or a malformed update/replacement
// document.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string { return fmt.Sprintf("invalid argument: %s", e.Reason) }

// NewArgumentError builds an *ArgumentError with a formatted reason.
func NewArgumentError(format string, args ...interface{}) error {
	return &ArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// OperationError indicates the server reported errmsg for a successful
// protocol exchange: the round trip itself worked, but the operation
// failed server-side.
type OperationError struct {
	Message string
	Code    int32
	Name    string
}

func (e *OperationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.Code, e.Name, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

// CursorNotFoundError indicates the server reported cursor-not-found, or
// that a command-cursor reply was missing its cursor sub-document.
type CursorNotFoundError struct {
	CursorID int64
	Reason   string
}

func (e *CursorNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cursor %d not found: %s", e.CursorID, e.Reason)
	}
	return fmt.Sprintf("cursor %d not found", e.CursorID)
}

// WriteError is one per-document write failure reported in a command
// reply.
type WriteError struct {
	Index   int
	Code    int32
	Message string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error at index %d (code %d): %s", e.Index, e.Code, e.Message)
}

// BulkWriteError aggregates the per-document WriteErrors of a batch. It
// carries no summary of the writes that succeeded.
type BulkWriteError struct {
	WriteErrors []WriteError
}

func (e *BulkWriteError) Error() string {
	return fmt.Sprintf("bulk write failed with %d error(s)", len(e.WriteErrors))
}

// PoisonLockError indicates an internal guarded value's critical section
// panicked while holding the lock, leaving the protected state
// untrustworthy; it surfaces in place of blocking forever or silently
// returning stale state.
type PoisonLockError struct {
	Panic interface{}
}

func (e *PoisonLockError) Error() string {
	return fmt.Sprintf("internal lock poisoned by panic: %v", e.Panic)
}

// IoError wraps a socket or OS-level error encountered while framing or
// transporting wire messages.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *IoError) Unwrap() error { return e.Err }

// WrapIO wraps err, which originated from the named I/O operation, as an
// *IoError. It returns nil if err is nil.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: err}
}
