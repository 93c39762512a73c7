// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"math"
	"strings"
)

const maxDocumentLen = math.MaxInt32

// elemSize returns the number of bytes Append{Elem} would write for a
// (key, value) pair: the tag byte, the key cstring, and the value
// encoding.
func elemSize(key string, v Value) int64 {
	return 1 + int64(len(key)) + 1 + valueSize(v)
}

func cstringSize(s string) int64 {
	return int64(len(s)) + 1
}

func valueSize(v Value) int64 {
	switch v.t {
	case TypeDouble:
		return 8
	case TypeString, TypeJavaScript:
		return 4 + cstringSize(v.str)
	case TypeDocument, TypeArray:
		return int64(v.doc.Size())
	case TypeBinary:
		return 4 + 1 + int64(len(v.bin.Data))
	case TypeObjectID:
		return 12
	case TypeBoolean:
		return 1
	case TypeDateTime:
		return 8
	case TypeNull, TypeMinKey, TypeMaxKey:
		return 0
	case TypeRegex:
		return cstringSize(v.rx.Pattern) + cstringSize(v.rx.Options)
	case TypeDBPointer:
		return 4 + cstringSize(v.ref.Collection) + 12
	case TypeCodeWithScope:
		return 4 + (4 + cstringSize(v.cws.Code)) + int64(v.cws.Scope.Size())
	case TypeInt32:
		return 4
	case TypeTimestamp:
		return 8
	case TypeInt64:
		return 8
	default:
		return 0
	}
}

// Encode returns the byte-exact wire encoding of d. It fails with an
// *InvalidBSONError if the encoded length would not fit in an int32, if
// a key, regex or string contains a NUL byte where a cstring is written,
// or if a nested document or scope is nil. Object ids are fixed 12-byte
// arrays, so no object id length check is needed.
func Encode(d *Document) ([]byte, error) {
	size := int64(4)
	for _, e := range d.Elements() {
		size += elemSize(e.Key, e.Value)
	}
	size++ // terminating zero

	if size > maxDocumentLen {
		return nil, ErrDocumentTooLarge
	}

	buf := make([]byte, 0, size)
	return appendDocument(buf, d)
}

func appendDocument(buf []byte, d *Document) ([]byte, error) {
	start := len(buf)
	buf = append(buf, 0, 0, 0, 0) // length placeholder

	var err error
	for _, e := range d.Elements() {
		buf, err = appendElement(buf, e.Key, e.Value)
		if err != nil {
			return nil, err
		}
	}
	buf = append(buf, 0x00)

	length := len(buf) - start
	if length > maxDocumentLen {
		return nil, ErrDocumentTooLarge
	}
	binary.LittleEndian.PutUint32(buf[start:start+4], uint32(length))
	return buf, nil
}

func appendCString(buf []byte, s string) ([]byte, error) {
	if strings.IndexByte(s, 0x00) >= 0 {
		return nil, newInvalidBSONError("cstring %q contains a NUL byte", s)
	}
	buf = append(buf, s...)
	buf = append(buf, 0x00)
	return buf, nil
}

func appendString(buf []byte, s string) ([]byte, error) {
	lengthIdx := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	var err error
	buf, err = appendCString(buf, s)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[lengthIdx:lengthIdx+4], uint32(len(buf)-lengthIdx-4))
	return buf, nil
}

func appendElement(buf []byte, key string, v Value) ([]byte, error) {
	buf = append(buf, byte(v.t))
	var err error
	buf, err = appendCString(buf, key)
	if err != nil {
		return nil, err
	}
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch v.t {
	case TypeDouble:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.dbl))
		return append(buf, tmp[:]...), nil

	case TypeString, TypeJavaScript:
		return appendString(buf, v.str)

	case TypeDocument, TypeArray:
		if v.doc == nil {
			return nil, ErrNilDocument
		}
		return appendDocument(buf, v.doc)

	case TypeBinary:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(v.bin.Data)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, v.bin.Subtype)
		return append(buf, v.bin.Data...), nil

	case TypeObjectID:
		return append(buf, v.oid[:]...), nil

	case TypeBoolean:
		if v.bl {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case TypeDateTime:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.dt))
		return append(buf, tmp[:]...), nil

	case TypeNull, TypeMinKey, TypeMaxKey:
		return buf, nil

	case TypeRegex:
		var err error
		buf, err = appendCString(buf, v.rx.Pattern)
		if err != nil {
			return nil, err
		}
		return appendCString(buf, v.rx.Options)

	case TypeDBPointer:
		var err error
		buf, err = appendString(buf, v.ref.Collection)
		if err != nil {
			return nil, err
		}
		return append(buf, v.ref.ID[:]...), nil

	case TypeCodeWithScope:
		if v.cws.Scope == nil {
			return nil, ErrNilDocument
		}
		lengthIdx := len(buf)
		buf = append(buf, 0, 0, 0, 0)
		var err error
		buf, err = appendString(buf, v.cws.Code)
		if err != nil {
			return nil, err
		}
		buf, err = appendDocument(buf, v.cws.Scope)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf[lengthIdx:lengthIdx+4], uint32(len(buf)-lengthIdx))
		return buf, nil

	case TypeInt32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v.i32))
		return append(buf, tmp[:]...), nil

	case TypeTimestamp:
		var tmp [8]byte
		binary.LittleEndian.PutUint32(tmp[0:4], v.ts.Increment)
		binary.LittleEndian.PutUint32(tmp[4:8], v.ts.Seconds)
		return append(buf, tmp[:]...), nil

	case TypeInt64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.i64))
		return append(buf, tmp[:]...), nil

	default:
		return nil, newInvalidBSONError("unknown element type 0x%02X", byte(v.t))
	}
}
