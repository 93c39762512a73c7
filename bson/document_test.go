// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"errors"
	"testing"
)

func TestDocumentOrderAffectsEquality(t *testing.T) {
	a := NewDocument(C("x", Int32(1)), C("y", Int32(2)))
	b := NewDocument(C("y", Int32(2)), C("x", Int32(1)))

	if a.Equal(b) {
		t.Fatalf("documents with the same entries in different order must not be equal")
	}

	ea, _ := Encode(a)
	eb, _ := Encode(b)
	if string(ea) == string(eb) {
		t.Fatalf("documents with different insertion order must encode to different bytes")
	}
}

func TestDocumentSetPreservesPosition(t *testing.T) {
	d := NewDocument(C("a", Int32(1)), C("b", Int32(2)), C("c", Int32(3)))
	d.Set("b", Int32(99))

	if got := d.Keys(); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("Set must not change key order, got %v", got)
	}
	v, _ := d.Lookup("b")
	if i, _ := v.Int32OK(); i != 99 {
		t.Fatalf("Lookup(b) = %d, want 99", i)
	}
}

func TestDocumentDeleteShiftsIndex(t *testing.T) {
	d := NewDocument(C("a", Int32(1)), C("b", Int32(2)), C("c", Int32(3)))
	d.Delete("b")

	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	if _, ok := d.Lookup("b"); ok {
		t.Fatalf("b should have been deleted")
	}
	v, ok := d.Lookup("c")
	if !ok {
		t.Fatalf("c should still be present after deleting b")
	}
	if i, _ := v.Int32OK(); i != 3 {
		t.Fatalf("Lookup(c) = %d, want 3", i)
	}
}

func TestDocumentLookupErr(t *testing.T) {
	d := NewDocument(C("a", Int32(1)))
	_, err := d.LookupErr("missing")
	if err == nil {
		t.Fatalf("expected KeyNotFoundError")
	}
	var knf *KeyNotFoundError
	if !errors.As(err, &knf) {
		t.Fatalf("expected *KeyNotFoundError, got %T", err)
	}
}
