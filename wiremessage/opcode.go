// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wiremessage assembles the document codec's output into
// length-prefixed, opcode-tagged frames, and parses frames back into
// typed messages.
package wiremessage

// OpCode identifies the kind of message a frame carries.
type OpCode int32

// The opcodes this driver emits and accepts. OpReserved (1000) is never
// emitted; it is defined only so a frame carrying it is recognizable as
// the legacy reserved opcode rather than an unknown one.
const (
	OpReply       OpCode = 1
	OpReserved    OpCode = 1000
	OpUpdate      OpCode = 2001
	OpInsert      OpCode = 2002
	OpQuery       OpCode = 2004
	OpGetMore     OpCode = 2005
	OpDelete      OpCode = 2006
	OpKillCursors OpCode = 2007
	OpCompressed  OpCode = 2012
)

func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "reply"
	case OpReserved:
		return "reserved"
	case OpUpdate:
		return "update"
	case OpInsert:
		return "insert"
	case OpQuery:
		return "query"
	case OpGetMore:
		return "getMore"
	case OpDelete:
		return "delete"
	case OpKillCursors:
		return "killCursors"
	case OpCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// HeaderLen is the fixed size, in bytes, of every frame's header.
const HeaderLen = 16

// Header is the 16-byte frame header common to every message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32 // the RequestID this message is a reply to, or 0
	OpCode        OpCode
}

// QueryFlags are the bit flags carried in an OpQuery frame.
type QueryFlags int32

const (
	QueryTailableCursor QueryFlags = 1 << 1
	QuerySlaveOK        QueryFlags = 1 << 2
	QueryNoCursorTimeout QueryFlags = 1 << 4
	QueryAwaitData      QueryFlags = 1 << 5
	QueryExhaust        QueryFlags = 1 << 6
	QueryPartial        QueryFlags = 1 << 7
)

// UpdateFlags are the bit flags carried in an OpUpdate frame.
type UpdateFlags int32

const (
	UpdateUpsert UpdateFlags = 1 << 0
	UpdateMulti  UpdateFlags = 1 << 1
)

// DeleteFlags are the bit flags carried in an OpDelete frame.
type DeleteFlags int32

const (
	DeleteSingleRemove DeleteFlags = 1 << 0
)

// ReplyFlags are the bit flags carried in an OpReply frame.
type ReplyFlags int32

const (
	// ReplyCursorNotFound indicates the cursor id given in the request
	// that produced this reply was unknown to the server.
	ReplyCursorNotFound ReplyFlags = 1 << 0
	// ReplyQueryFailure indicates the reply's first (and only) document
	// is an error description rather than a query result.
	ReplyQueryFailure ReplyFlags = 1 << 1
	// ReplyShardConfigStale is unused by this driver; servers no longer
	// set it.
	ReplyShardConfigStale ReplyFlags = 1 << 2
	// ReplyAwaitCapable indicates the server supports the
	// QueryAwaitData flag.
	ReplyAwaitCapable ReplyFlags = 1 << 3
)

// CompressorID identifies the compression algorithm used by an
// OpCompressed envelope.
type CompressorID byte

const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
)

func (c CompressorID) String() string {
	switch c {
	case CompressorNoop:
		return "noop"
	case CompressorSnappy:
		return "snappy"
	case CompressorZlib:
		return "zlib"
	default:
		return "unknown"
	}
}
