// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

// Elem is one (key, value) pair of a Document, in the position it
// occupies within the document's insertion order.
type Elem struct {
	Key   string
	Value Value
}

// Document is an ordered mapping from string keys to Values. Insertion
// order is preserved and is observable in the byte encoding: two
// documents holding the same entries in a different order encode to
// different bytes and are not Equal.
type Document struct {
	elems []Elem
	index map[string]int
	size  int32
}

// NewDocument returns an empty Document, optionally seeded with elems in
// the given order.
func NewDocument(elems ...Elem) *Document {
	d := &Document{index: make(map[string]int, len(elems))}
	for _, e := range elems {
		d.Append(e.Key, e.Value)
	}
	return d
}

// C builds an Elem; a small helper for literal document construction,
// e.g. NewDocument(C("foo", String("bar"))).
func C(key string, value Value) Elem {
	return Elem{Key: key, Value: value}
}

// Len returns the number of elements in d.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.elems)
}

// Keys returns the document's keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.elems))
	for i, e := range d.elems {
		keys[i] = e.Key
	}
	return keys
}

// Elements returns the document's elements in insertion order. The
// returned slice must not be mutated by the caller.
func (d *Document) Elements() []Elem {
	if d == nil {
		return nil
	}
	return d.elems
}

// Append adds a new (key, value) pair at the end of the document,
// regardless of whether key already exists, and recomputes the cached
// size. Use Set to replace an existing key's value in place instead.
func (d *Document) Append(key string, value Value) *Document {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	d.index[key] = len(d.elems)
	d.elems = append(d.elems, Elem{Key: key, Value: value})
	d.recomputeSize()
	return d
}

// Set replaces the value for key if it is already present, preserving
// its position, or appends a new element if it is not.
func (d *Document) Set(key string, value Value) *Document {
	if d.index != nil {
		if i, ok := d.index[key]; ok {
			d.elems[i].Value = value
			d.recomputeSize()
			return d
		}
	}
	return d.Append(key, value)
}

// Lookup returns the value stored under key and true, or the zero Value
// and false if key is not present.
func (d *Document) Lookup(key string) (Value, bool) {
	if d == nil || d.index == nil {
		return Value{}, false
	}
	i, ok := d.index[key]
	if !ok {
		return Value{}, false
	}
	return d.elems[i].Value, true
}

// LookupErr behaves like Lookup but returns a *KeyNotFoundError instead
// of a boolean.
func (d *Document) LookupErr(key string) (Value, error) {
	v, ok := d.Lookup(key)
	if !ok {
		return Value{}, &KeyNotFoundError{Key: key}
	}
	return v, nil
}

// Delete removes key from the document, if present, and recomputes the
// cached size.
func (d *Document) Delete(key string) *Document {
	if d == nil || d.index == nil {
		return d
	}
	i, ok := d.index[key]
	if !ok {
		return d
	}
	d.elems = append(d.elems[:i], d.elems[i+1:]...)
	delete(d.index, key)
	for k, idx := range d.index {
		if idx > i {
			d.index[k] = idx - 1
		}
	}
	d.recomputeSize()
	return d
}

// Size returns the cached encoded length of d in bytes, equal to
// len(Encode(d)). The cache is recomputed on every mutating call.
func (d *Document) Size() int32 {
	if d == nil {
		return 5
	}
	return d.size
}

func (d *Document) recomputeSize() {
	var total int64 = 4 + 1 // length prefix + terminating zero
	for _, e := range d.elems {
		total += elemSize(e.Key, e.Value)
	}
	d.size = int32(total)
}

// Equal reports whether d and other hold the same elements in the same
// order: the byte-identity notion of equality the spec requires.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.elems) != len(other.elems) {
		return false
	}
	for i, e := range d.elems {
		oe := other.elems[i]
		if e.Key != oe.Key || !e.Value.Equal(oe.Value) {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy of d: elements are copied, but document,
// array, and scope values within them are shared with d.
func (d *Document) Copy() *Document {
	if d == nil {
		return nil
	}
	cp := NewDocument()
	for _, e := range d.elems {
		cp.Append(e.Key, e.Value)
	}
	return cp
}
