// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import "fmt"

// InvalidBSONError indicates that a byte sequence could not be decoded
// under the rules of the binary document format, or that a value cannot
// be encoded without violating them (for example an object id whose
// length is not 12 bytes).
type InvalidBSONError struct {
	Reason string
}

func (e *InvalidBSONError) Error() string {
	return fmt.Sprintf("invalid bson: %s", e.Reason)
}

func newInvalidBSONError(format string, args ...interface{}) error {
	return &InvalidBSONError{Reason: fmt.Sprintf(format, args...)}
}

// ErrNilDocument is returned when an operation is attempted against a nil
// *Document.
var ErrNilDocument = newInvalidBSONError("document is nil")

// ErrTooDeep is returned by Decode when a document nests beyond the
// implementation-defined depth bound.
var ErrTooDeep = newInvalidBSONError("document nesting exceeds maximum depth")

// ErrDocumentTooLarge is returned by Encode when a document's encoded
// length would not fit in a signed 32-bit integer.
var ErrDocumentTooLarge = newInvalidBSONError("document length exceeds int32 range")

// ErrInvalidObjectID is returned when an object id value is not exactly 12
// bytes.
var ErrInvalidObjectID = newInvalidBSONError("object id must be exactly 12 bytes")

// KeyNotFoundError is returned by Document lookups that fail to find a
// requested key.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in document", e.Key)
}
