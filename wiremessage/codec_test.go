// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mongokit/driver/bson"
)

func TestWriteThenReadRequestRoundTrips(t *testing.T) {
	cases := []Message{
		Query{
			Namespace:   "db.coll",
			Flags:       QuerySlaveOK,
			Skip:        1,
			ReturnCount: 100,
			Selector:    bson.NewDocument(bson.C("x", bson.Int32(1))),
			Projection:  bson.NewDocument(bson.C("x", bson.Int32(1))),
		},
		Insert{
			Namespace: "db.coll",
			Flags:     0,
			Documents: []*bson.Document{
				bson.NewDocument(bson.C("a", bson.Int32(1))),
				bson.NewDocument(bson.C("a", bson.Int32(2))),
			},
		},
		Update{
			Namespace: "db.coll",
			Flags:     UpdateUpsert,
			Selector:  bson.NewDocument(bson.C("a", bson.Int32(1))),
			Update:    bson.NewDocument(bson.C("$set", bson.Doc(bson.NewDocument(bson.C("a", bson.Int32(2)))))),
		},
		Delete{
			Namespace: "db.coll",
			Flags:     DeleteSingleRemove,
			Selector:  bson.NewDocument(bson.C("a", bson.Int32(1))),
		},
		GetMore{
			Namespace:   "db.coll",
			ReturnCount: 100,
			CursorID:    1234567890,
		},
		KillCursors{
			CursorIDs: []int64{1, 2, 3},
		},
	}

	for _, m := range cases {
		var buf bytes.Buffer
		if err := Write(&buf, 42, m, nil); err != nil {
			t.Fatalf("Write(%T): %v", m, err)
		}

		_, decoded, err := ReadRequest(&buf)
		if err != nil {
			t.Fatalf("ReadRequest(%T): %v", m, err)
		}

		if !messagesEqual(t, m, decoded) {
			t.Fatalf("round trip mismatch for %T:\nwant %#v\ngot  %#v", m, m, decoded)
		}
	}
}

func messagesEqual(t *testing.T, want, got Message) bool {
	t.Helper()
	switch w := want.(type) {
	case Query:
		g, ok := got.(Query)
		if !ok {
			return false
		}
		return w.Namespace == g.Namespace && w.Flags == g.Flags && w.Skip == g.Skip &&
			w.ReturnCount == g.ReturnCount && w.Selector.Equal(g.Selector) &&
			((w.Projection == nil && g.Projection == nil) || w.Projection.Equal(g.Projection))
	case Insert:
		g, ok := got.(Insert)
		if !ok || len(w.Documents) != len(g.Documents) {
			return false
		}
		for i := range w.Documents {
			if !w.Documents[i].Equal(g.Documents[i]) {
				return false
			}
		}
		return w.Namespace == g.Namespace && w.Flags == g.Flags
	case Update:
		g, ok := got.(Update)
		if !ok {
			return false
		}
		return w.Namespace == g.Namespace && w.Flags == g.Flags &&
			w.Selector.Equal(g.Selector) && w.Update.Equal(g.Update)
	case Delete:
		g, ok := got.(Delete)
		if !ok {
			return false
		}
		return w.Namespace == g.Namespace && w.Flags == g.Flags && w.Selector.Equal(g.Selector)
	case GetMore:
		return cmp.Equal(w, got)
	case KillCursors:
		return cmp.Equal(w, got)
	default:
		return false
	}
}

func TestWriteRejectsReply(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, 1, Reply{}, nil)
	if err != ErrNotReply {
		t.Fatalf("Write(Reply{}) error = %v, want ErrNotReply", err)
	}
}

func TestReadRejectsNonReplyOpcode(t *testing.T) {
	var buf bytes.Buffer
	q := Query{Namespace: "db.coll", Selector: bson.NewDocument()}
	if err := Write(&buf, 1, q, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, _, err := Read(&buf, nil)
	if err == nil {
		t.Fatalf("expected Read to reject a non-reply opcode")
	}
	var respErr *ResponseError
	if !isResponseError(err, &respErr) {
		t.Fatalf("expected *ResponseError, got %T: %v", err, err)
	}
}

func isResponseError(err error, target **ResponseError) bool {
	if e, ok := err.(*ResponseError); ok {
		*target = e
		return true
	}
	return false
}

func TestReplyFlagSemantics(t *testing.T) {
	r := Reply{Flags: ReplyCursorNotFound}
	if !r.CursorNotFound() {
		t.Fatalf("expected CursorNotFound() true")
	}
	if r.QueryFailure() {
		t.Fatalf("expected QueryFailure() false")
	}
}

func TestReplyRoundTripViaServerFake(t *testing.T) {
	var buf bytes.Buffer
	want := Reply{
		CursorID:       99,
		StartingFrom:   0,
		NumberReturned: 2,
		Documents: []*bson.Document{
			bson.NewDocument(bson.C("a", bson.Int32(1))),
			bson.NewDocument(bson.C("a", bson.Int32(2))),
		},
	}
	if err := WriteReply(&buf, 1, 42, want); err != nil {
		t.Fatalf("WriteReply: %v", err)
	}

	_, got, err := Read(&buf, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.CursorID != want.CursorID || got.NumberReturned != want.NumberReturned {
		t.Fatalf("got %#v, want %#v", got, want)
	}
	for i := range want.Documents {
		if !want.Documents[i].Equal(got.Documents[i]) {
			t.Fatalf("document %d mismatch", i)
		}
	}
}

// reverseCompressor is a minimal, reversible stand-in for a real
// compression codec, used to exercise the OP_COMPRESSED envelope
// plumbing without depending on the connection package's real
// snappy/zlib wiring.
type reverseCompressor struct{}

func (reverseCompressor) ID() CompressorID { return CompressorSnappy }

func (reverseCompressor) Compress(dst, src []byte) ([]byte, error) {
	out := append(dst, make([]byte, len(src))...)
	base := len(out) - len(src)
	for i, b := range src {
		out[base+len(src)-1-i] = b
	}
	return out, nil
}

func (reverseCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return reverseCompressor{}.Compress(dst, src)
}

func TestCompressedQueryWriteReadEnvelope(t *testing.T) {
	var buf bytes.Buffer
	q := Query{Namespace: "db.coll", Selector: bson.NewDocument(bson.C("a", bson.Int32(1)))}
	if err := Write(&buf, 7, q, reverseCompressor{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, decoded, err := readRequestThroughCompressor(&buf, reverseCompressor{})
	if err != nil {
		t.Fatalf("decoding compressed request: %v", err)
	}
	got, ok := decoded.(Query)
	if !ok {
		t.Fatalf("decoded type = %T, want Query", decoded)
	}
	if got.Namespace != q.Namespace || !got.Selector.Equal(q.Selector) {
		t.Fatalf("got %#v, want %#v", got, q)
	}
}

// readRequestThroughCompressor mirrors the unwrap step Read performs for
// replies, but for a request opcode, to test envelope handling on both
// sides of the protocol with a single compressor implementation.
func readRequestThroughCompressor(r *bytes.Buffer, c Compressor) (Header, Message, error) {
	headerBuf := make([]byte, HeaderLen)
	if _, err := r.Read(headerBuf); err != nil {
		return Header{}, nil, err
	}
	header := Header{
		MessageLength: readInt32(headerBuf[0:4]),
		RequestID:     readInt32(headerBuf[4:8]),
		ResponseTo:    readInt32(headerBuf[8:12]),
		OpCode:        OpCode(readInt32(headerBuf[12:16])),
	}
	body := make([]byte, int(header.MessageLength)-HeaderLen)
	if _, err := r.Read(body); err != nil {
		return Header{}, nil, err
	}
	opcode, decompressed, err := decompressEnvelope(body, map[CompressorID]Compressor{c.ID(): c})
	if err != nil {
		return header, nil, err
	}
	m, err := decodeRequestBody(opcode, decompressed)
	return header, m, err
}
