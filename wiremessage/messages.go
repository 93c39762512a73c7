// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import "github.com/mongokit/driver/bson"

// Message is the closed sum of the seven wire message kinds. It is
// deliberately a flat sum dispatched with a type switch in encodeBody
// and decodeRequestBody
// rather than hidden behind subtype polymorphism; a message is one of
// exactly these seven shapes and nothing else.
type Message interface {
	OpCode() OpCode
}

// Query is an OP_QUERY message.
type Query struct {
	Namespace   string
	Flags       QueryFlags
	Skip        int32
	ReturnCount int32 // 0 = server default; negative = exactly |n| then close
	Selector    *bson.Document
	Projection  *bson.Document // nil if no projection was requested
}

// OpCode implements Message.
func (Query) OpCode() OpCode { return OpQuery }

// Insert is an OP_INSERT message.
type Insert struct {
	Namespace string
	Flags     InsertFlags
	Documents []*bson.Document
}

// OpCode implements Message.
func (Insert) OpCode() OpCode { return OpInsert }

// InsertFlags are the bit flags carried in an OpInsert frame.
type InsertFlags int32

const (
	InsertContinueOnError InsertFlags = 1 << 0
)

// Update is an OP_UPDATE message.
type Update struct {
	Namespace string
	Flags     UpdateFlags
	Selector  *bson.Document
	Update    *bson.Document
}

// OpCode implements Message.
func (Update) OpCode() OpCode { return OpUpdate }

// Delete is an OP_DELETE message.
type Delete struct {
	Namespace string
	Flags     DeleteFlags
	Selector  *bson.Document
}

// OpCode implements Message.
func (Delete) OpCode() OpCode { return OpDelete }

// GetMore is an OP_GET_MORE message.
type GetMore struct {
	Namespace   string
	ReturnCount int32
	CursorID    int64
}

// OpCode implements Message.
func (GetMore) OpCode() OpCode { return OpGetMore }

// KillCursors is an OP_KILL_CURSORS message. It may carry more than one
// cursor id so that several server-side cursors can be released in a
// single round trip.
type KillCursors struct {
	CursorIDs []int64
}

// OpCode implements Message.
func (KillCursors) OpCode() OpCode { return OpKillCursors }

// Reply is an OP_REPLY message.
type Reply struct {
	Flags          ReplyFlags
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []*bson.Document
}

// OpCode implements Message.
func (Reply) OpCode() OpCode { return OpReply }

// CursorNotFound reports whether the reply's cursor-not-found flag bit
// is set.
func (r Reply) CursorNotFound() bool {
	return r.Flags&ReplyCursorNotFound != 0
}

// QueryFailure reports whether the reply's query-failure flag bit is
// set, meaning Documents[0] is an error description rather than a
// result document.
func (r Reply) QueryFailure() bool {
	return r.Flags&ReplyQueryFailure != 0
}
