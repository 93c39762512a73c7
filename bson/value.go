// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson implements the self-describing binary document format used
// on the wire: a Document is an ordered mapping from string keys to typed
// Values, and this package provides byte-exact Encode/Decode between that
// tree and the wire bytes.
package bson

import (
	"fmt"

	"github.com/mongokit/driver/bson/objectid"
)

// Type is the one-byte tag that precedes every element's value on the
// wire. These values are fixed by the wire format and must never change.
type Type byte

// The complete set of document element types, and their wire tag bytes.
const (
	TypeDouble        Type = 0x01
	TypeString        Type = 0x02
	TypeDocument      Type = 0x03
	TypeArray         Type = 0x04
	TypeBinary        Type = 0x05
	TypeObjectID      Type = 0x07
	TypeBoolean       Type = 0x08
	TypeDateTime      Type = 0x09
	TypeNull          Type = 0x0A
	TypeRegex         Type = 0x0B
	TypeDBPointer     Type = 0x0C
	TypeJavaScript    Type = 0x0D
	TypeCodeWithScope Type = 0x0F
	TypeInt32         Type = 0x10
	TypeTimestamp     Type = 0x11
	TypeInt64         Type = 0x12
	TypeMinKey        Type = 0xFF
	TypeMaxKey        Type = 0x7F
)

func (t Type) String() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeDocument:
		return "document"
	case TypeArray:
		return "array"
	case TypeBinary:
		return "binary"
	case TypeObjectID:
		return "objectID"
	case TypeBoolean:
		return "boolean"
	case TypeDateTime:
		return "dateTime"
	case TypeNull:
		return "null"
	case TypeRegex:
		return "regex"
	case TypeDBPointer:
		return "dbPointer"
	case TypeJavaScript:
		return "javascript"
	case TypeCodeWithScope:
		return "javascriptWithScope"
	case TypeInt32:
		return "int32"
	case TypeTimestamp:
		return "timestamp"
	case TypeInt64:
		return "int64"
	case TypeMinKey:
		return "minKey"
	case TypeMaxKey:
		return "maxKey"
	default:
		return fmt.Sprintf("Type(0x%02X)", byte(t))
	}
}

// Binary represents a binary value: a subtype byte followed by the raw
// payload.
type Binary struct {
	Subtype byte
	Data    []byte
}

// Regex represents a regular expression value.
type Regex struct {
	Pattern string
	Options string
}

func (r Regex) String() string {
	return fmt.Sprintf("/%s/%s", r.Pattern, r.Options)
}

// DBPointer represents a database reference: a collection name paired
// with an object id.
type DBPointer struct {
	Collection string
	ID         objectid.ObjectID
}

// CodeWithScope represents JavaScript code paired with a scope document.
type CodeWithScope struct {
	Code  string
	Scope *Document
}

// Timestamp represents the internal replication timestamp: an increment
// and a seconds-since-epoch value, each a little-endian uint32 on the
// wire.
type Timestamp struct {
	Increment uint32
	Seconds   uint32
}

// Value is a tagged union over every element type the document format
// supports. The zero Value carries no element type (Type() returns 0)
// and cannot be encoded; use Null() for a null value.
type Value struct {
	t Type

	dbl  float64
	str  string
	doc  *Document
	bin  Binary
	oid  objectid.ObjectID
	bl   bool
	dt   int64
	rx   Regex
	ref  DBPointer
	i32  int32
	ts   Timestamp
	i64  int64
	cws  CodeWithScope
}

// Type reports v's element type.
func (v Value) Type() Type { return v.t }

// IsNull reports whether v holds the null value.
func (v Value) IsNull() bool { return v.t == TypeNull }

// Double constructs a double-precision floating point value.
func Double(f float64) Value { return Value{t: TypeDouble, dbl: f} }

// String constructs a UTF-8 string value.
func String(s string) Value { return Value{t: TypeString, str: s} }

// Doc constructs an embedded-document value.
func Doc(d *Document) Value { return Value{t: TypeDocument, doc: d} }

// Arr constructs an array value. Arrays are encoded as documents whose
// keys are "0", "1", ... in order; Arr is a convenience constructor
// that builds that backing Document from positional values.
func Arr(values ...Value) Value {
	d := NewDocument()
	for i, v := range values {
		d.Append(fmt.Sprintf("%d", i), v)
	}
	return Value{t: TypeArray, doc: d}
}

// ArrDoc constructs an array value from an already-assembled backing
// document; the caller is responsible for the "0","1",... key
// invariant.
func ArrDoc(d *Document) Value { return Value{t: TypeArray, doc: d} }

// Bin constructs a binary value.
func Bin(subtype byte, data []byte) Value {
	return Value{t: TypeBinary, bin: Binary{Subtype: subtype, Data: data}}
}

// ObjectID constructs an object id value.
func ObjectID(id objectid.ObjectID) Value { return Value{t: TypeObjectID, oid: id} }

// Boolean constructs a boolean value.
func Boolean(b bool) Value { return Value{t: TypeBoolean, bl: b} }

// DateTime constructs a UTC datetime value from milliseconds since the
// epoch.
func DateTime(ms int64) Value { return Value{t: TypeDateTime, dt: ms} }

// Null constructs the null value.
func Null() Value { return Value{t: TypeNull} }

// RegexVal constructs a regular expression value.
func RegexVal(pattern, options string) Value {
	return Value{t: TypeRegex, rx: Regex{Pattern: pattern, Options: options}}
}

// DBRef constructs a database reference value.
func DBRef(collection string, id objectid.ObjectID) Value {
	return Value{t: TypeDBPointer, ref: DBPointer{Collection: collection, ID: id}}
}

// JavaScript constructs a JavaScript code value.
func JavaScript(code string) Value { return Value{t: TypeJavaScript, str: code} }

// CodeScope constructs a JavaScript code with scope value.
func CodeScope(code string, scope *Document) Value {
	return Value{t: TypeCodeWithScope, cws: CodeWithScope{Code: code, Scope: scope}}
}

// Int32 constructs a 32-bit integer value.
func Int32(i int32) Value { return Value{t: TypeInt32, i32: i} }

// TimestampVal constructs an internal replication timestamp value.
func TimestampVal(increment, seconds uint32) Value {
	return Value{t: TypeTimestamp, ts: Timestamp{Increment: increment, Seconds: seconds}}
}

// Int64 constructs a 64-bit integer value.
func Int64(i int64) Value { return Value{t: TypeInt64, i64: i} }

// MinKey constructs the minimum sentinel value.
func MinKey() Value { return Value{t: TypeMinKey} }

// MaxKey constructs the maximum sentinel value.
func MaxKey() Value { return Value{t: TypeMaxKey} }

// ElementTypeError is returned by a typed accessor when the value's
// actual type does not match the accessor being called.
type ElementTypeError struct {
	Method string
	Type   Type
}

func (e *ElementTypeError) Error() string {
	return fmt.Sprintf("called %s on a %s value", e.Method, e.Type)
}

// DoubleOK returns v's float64 payload, or ok=false if v is not a double.
func (v Value) DoubleOK() (float64, bool) {
	if v.t != TypeDouble {
		return 0, false
	}
	return v.dbl, true
}

// StringValueOK returns v's string payload, or ok=false if v is not a
// string.
func (v Value) StringValueOK() (string, bool) {
	if v.t != TypeString {
		return "", false
	}
	return v.str, true
}

// DocumentOK returns v's embedded document, or ok=false if v is not a
// document.
func (v Value) DocumentOK() (*Document, bool) {
	if v.t != TypeDocument {
		return nil, false
	}
	return v.doc, true
}

// ArrayOK returns the backing document of an array value, or ok=false if
// v is not an array.
func (v Value) ArrayOK() (*Document, bool) {
	if v.t != TypeArray {
		return nil, false
	}
	return v.doc, true
}

// BinaryOK returns v's binary payload, or ok=false if v is not binary.
func (v Value) BinaryOK() (Binary, bool) {
	if v.t != TypeBinary {
		return Binary{}, false
	}
	return v.bin, true
}

// ObjectIDOK returns v's object id, or ok=false if v is not an object id.
func (v Value) ObjectIDOK() (objectid.ObjectID, bool) {
	if v.t != TypeObjectID {
		return objectid.ObjectID{}, false
	}
	return v.oid, true
}

// BooleanOK returns v's boolean payload, or ok=false if v is not a
// boolean.
func (v Value) BooleanOK() (bool, bool) {
	if v.t != TypeBoolean {
		return false, false
	}
	return v.bl, true
}

// DateTimeOK returns v's datetime payload in milliseconds since the
// epoch, or ok=false if v is not a datetime.
func (v Value) DateTimeOK() (int64, bool) {
	if v.t != TypeDateTime {
		return 0, false
	}
	return v.dt, true
}

// RegexOK returns v's regular expression payload, or ok=false if v is not
// a regex.
func (v Value) RegexOK() (Regex, bool) {
	if v.t != TypeRegex {
		return Regex{}, false
	}
	return v.rx, true
}

// DBPointerOK returns v's database reference payload, or ok=false if v is
// not a db pointer.
func (v Value) DBPointerOK() (DBPointer, bool) {
	if v.t != TypeDBPointer {
		return DBPointer{}, false
	}
	return v.ref, true
}

// JavaScriptOK returns v's JavaScript code, or ok=false if v is not
// JavaScript.
func (v Value) JavaScriptOK() (string, bool) {
	if v.t != TypeJavaScript {
		return "", false
	}
	return v.str, true
}

// CodeWithScopeOK returns v's code-with-scope payload, or ok=false if v
// is not code-with-scope.
func (v Value) CodeWithScopeOK() (CodeWithScope, bool) {
	if v.t != TypeCodeWithScope {
		return CodeWithScope{}, false
	}
	return v.cws, true
}

// Int32OK returns v's int32 payload, or ok=false if v is not an int32.
func (v Value) Int32OK() (int32, bool) {
	if v.t != TypeInt32 {
		return 0, false
	}
	return v.i32, true
}

// TimestampOK returns v's internal timestamp payload, or ok=false if v is
// not a timestamp.
func (v Value) TimestampOK() (Timestamp, bool) {
	if v.t != TypeTimestamp {
		return Timestamp{}, false
	}
	return v.ts, true
}

// Int64OK returns v's int64 payload, or ok=false if v is not an int64.
func (v Value) Int64OK() (int64, bool) {
	if v.t != TypeInt64 {
		return 0, false
	}
	return v.i64, true
}

// Equal reports whether v and other have the same type and payload. For
// document and array values this compares byte encoding, matching the
// wire-level equality the spec requires of Document.
func (v Value) Equal(other Value) bool {
	if v.t != other.t {
		return false
	}
	switch v.t {
	case TypeDouble:
		return v.dbl == other.dbl
	case TypeString, TypeJavaScript:
		return v.str == other.str
	case TypeDocument, TypeArray:
		if v.doc == nil || other.doc == nil {
			return v.doc == other.doc
		}
		return v.doc.Equal(other.doc)
	case TypeBinary:
		if v.bin.Subtype != other.bin.Subtype || len(v.bin.Data) != len(other.bin.Data) {
			return false
		}
		for i := range v.bin.Data {
			if v.bin.Data[i] != other.bin.Data[i] {
				return false
			}
		}
		return true
	case TypeObjectID:
		return v.oid == other.oid
	case TypeBoolean:
		return v.bl == other.bl
	case TypeDateTime:
		return v.dt == other.dt
	case TypeNull, TypeMinKey, TypeMaxKey:
		return true
	case TypeRegex:
		return v.rx == other.rx
	case TypeDBPointer:
		return v.ref == other.ref
	case TypeCodeWithScope:
		return v.cws.Code == other.cws.Code && v.cws.Scope.Equal(other.cws.Scope)
	case TypeInt32:
		return v.i32 == other.i32
	case TypeTimestamp:
		return v.ts == other.ts
	case TypeInt64:
		return v.i64 == other.i64
	default:
		return false
	}
}
