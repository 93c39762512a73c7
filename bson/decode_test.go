// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"testing"

	"github.com/mongokit/driver/bson/objectid"
)

func roundTrip(t *testing.T, d *Document) *Document {
	t.Helper()
	b, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !d.Equal(back) {
		t.Fatalf("round trip mismatch: %#v != %#v", d, back)
	}
	return back
}

func TestRoundTripAllTypes(t *testing.T) {
	oid := objectid.New()
	d := NewDocument(
		C("double", Double(3.25)),
		C("string", String("hello world")),
		C("doc", Doc(NewDocument(C("a", Int32(1))))),
		C("array", Arr(Int32(1), Int32(2), Int32(3))),
		C("binary", Bin(0x80, []byte{1, 2, 3, 4})),
		C("oid", ObjectID(oid)),
		C("bool", Boolean(true)),
		C("datetime", DateTime(1600000000000)),
		C("null", Null()),
		C("regex", RegexVal("^abc$", "i")),
		C("dbref", DBRef("coll", oid)),
		C("js", JavaScript("function() {}")),
		C("cws", CodeScope("function() {}", NewDocument(C("x", Int32(1))))),
		C("int32", Int32(-42)),
		C("ts", TimestampVal(7, 123456)),
		C("int64", Int64(1<<40)),
		C("min", MinKey()),
		C("max", MaxKey()),
	)
	roundTrip(t, d)
}

func TestDecodeRejectsBadLength(t *testing.T) {
	b := []byte{0x05, 0x00, 0x00, 0x00, 0xFF} // declares length 5 but no terminator
	if _, err := Decode(b); err == nil {
		t.Fatalf("expected decode to fail on malformed terminator")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	b := []byte{
		0x08, 0x00, 0x00, 0x00,
		0x99, 'x', 0x00,
		0x00,
	}
	if _, err := Decode(b); err == nil {
		t.Fatalf("expected decode to fail on unknown tag")
	}
}

func TestDecodeRejectsTooDeep(t *testing.T) {
	d := NewDocument()
	for i := 0; i <= MaxNestingDepth+1; i++ {
		d = NewDocument(C("d", Doc(d)))
	}
	b, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(b); err == nil {
		t.Fatalf("expected decode to fail past max nesting depth")
	}
}

func TestSizeMatchesEncodedLength(t *testing.T) {
	d := NewDocument()
	mutations := []func(){
		func() { d.Append("a", Int32(1)) },
		func() { d.Append("b", String("hello")) },
		func() { d.Set("a", Int32(2)) },
		func() { d.Append("c", Doc(NewDocument(C("x", Boolean(true))))) },
		func() { d.Delete("b") },
	}
	for _, m := range mutations {
		m()
		b, err := Encode(d)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if int(d.Size()) != len(b) {
			t.Fatalf("Size() = %d, want %d after mutation", d.Size(), len(b))
		}
	}
}
