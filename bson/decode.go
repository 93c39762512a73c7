// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"math"

	"github.com/mongokit/driver/bson/objectid"
)

// MaxNestingDepth bounds how deeply Decode will descend into nested
// documents, arrays, and code-with-scope values before failing with
// ErrTooDeep.
const MaxNestingDepth = 100

// Decode parses b as a single document and returns it. b must contain
// exactly one encoded document; trailing bytes are an error.
func Decode(b []byte) (*Document, error) {
	d, n, err := decodeDocument(b, 0)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, newInvalidBSONError("trailing %d bytes after document", len(b)-n)
	}
	return d, nil
}

// decodeDocument reads one document starting at b[0], returning it and
// the number of bytes consumed.
func decodeDocument(b []byte, depth int) (*Document, int, error) {
	if depth > MaxNestingDepth {
		return nil, 0, ErrTooDeep
	}
	if len(b) < 5 {
		return nil, 0, newInvalidBSONError("buffer too short for document header: %d bytes", len(b))
	}

	length := int32(binary.LittleEndian.Uint32(b[0:4]))
	if length < 5 || int(length) > len(b) {
		return nil, 0, newInvalidBSONError("declared document length %d is inconsistent with %d available bytes", length, len(b))
	}
	body := b[4:length]

	d := NewDocument()
	pos := 0
	for {
		if pos >= len(body) {
			return nil, 0, newInvalidBSONError("document missing terminating zero byte")
		}
		tag := body[pos]
		if tag == 0x00 {
			pos++
			break
		}
		pos++

		key, keyN, err := decodeCString(body[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += keyN

		v, valN, err := decodeValue(Type(tag), body[pos:], depth)
		if err != nil {
			return nil, 0, err
		}
		pos += valN

		d.Append(key, v)
	}

	if pos != len(body) {
		return nil, 0, newInvalidBSONError("declared document length %d disagrees with %d bytes of body consumed", length, pos)
	}

	return d, int(length), nil
}

func decodeCString(b []byte) (string, int, error) {
	for i, c := range b {
		if c == 0x00 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, newInvalidBSONError("cstring missing terminating NUL")
}

func decodeString(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, newInvalidBSONError("buffer too short for string length")
	}
	length := int32(binary.LittleEndian.Uint32(b[0:4]))
	if length < 1 || int(length) > len(b)-4 {
		return "", 0, newInvalidBSONError("declared string length %d is inconsistent with available bytes", length)
	}
	body := b[4 : 4+length]
	if body[len(body)-1] != 0x00 {
		return "", 0, newInvalidBSONError("string is not NUL-terminated at its declared length")
	}
	return string(body[:len(body)-1]), 4 + int(length), nil
}

func decodeValue(tag Type, b []byte, depth int) (Value, int, error) {
	switch tag {
	case TypeDouble:
		if len(b) < 8 {
			return Value{}, 0, newInvalidBSONError("buffer too short for double")
		}
		bits := binary.LittleEndian.Uint64(b[:8])
		return Double(math.Float64frombits(bits)), 8, nil

	case TypeString:
		s, n, err := decodeString(b)
		if err != nil {
			return Value{}, 0, err
		}
		return String(s), n, nil

	case TypeDocument:
		d, n, err := decodeDocument(b, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Doc(d), n, nil

	case TypeArray:
		d, n, err := decodeDocument(b, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return ArrDoc(d), n, nil

	case TypeBinary:
		if len(b) < 5 {
			return Value{}, 0, newInvalidBSONError("buffer too short for binary header")
		}
		length := int32(binary.LittleEndian.Uint32(b[0:4]))
		if length < 0 || int(length) > len(b)-5 {
			return Value{}, 0, newInvalidBSONError("declared binary length %d is inconsistent with available bytes", length)
		}
		subtype := b[4]
		data := make([]byte, length)
		copy(data, b[5:5+length])
		return Bin(subtype, data), 5 + int(length), nil

	case TypeObjectID:
		if len(b) < 12 {
			return Value{}, 0, ErrInvalidObjectID
		}
		id, err := objectid.FromBytes(b[:12])
		if err != nil {
			return Value{}, 0, ErrInvalidObjectID
		}
		return ObjectID(id), 12, nil

	case TypeBoolean:
		if len(b) < 1 {
			return Value{}, 0, newInvalidBSONError("buffer too short for boolean")
		}
		switch b[0] {
		case 0:
			return Boolean(false), 1, nil
		case 1:
			return Boolean(true), 1, nil
		default:
			return Value{}, 0, newInvalidBSONError("boolean byte must be 0 or 1, got %d", b[0])
		}

	case TypeDateTime:
		if len(b) < 8 {
			return Value{}, 0, newInvalidBSONError("buffer too short for datetime")
		}
		ms := int64(binary.LittleEndian.Uint64(b[:8]))
		return DateTime(ms), 8, nil

	case TypeNull:
		return Null(), 0, nil

	case TypeRegex:
		pattern, n1, err := decodeCString(b)
		if err != nil {
			return Value{}, 0, err
		}
		options, n2, err := decodeCString(b[n1:])
		if err != nil {
			return Value{}, 0, err
		}
		return RegexVal(pattern, options), n1 + n2, nil

	case TypeDBPointer:
		coll, n1, err := decodeString(b)
		if err != nil {
			return Value{}, 0, err
		}
		if len(b[n1:]) < 12 {
			return Value{}, 0, ErrInvalidObjectID
		}
		id, err := objectid.FromBytes(b[n1 : n1+12])
		if err != nil {
			return Value{}, 0, ErrInvalidObjectID
		}
		return DBRef(coll, id), n1 + 12, nil

	case TypeJavaScript:
		s, n, err := decodeString(b)
		if err != nil {
			return Value{}, 0, err
		}
		return JavaScript(s), n, nil

	case TypeCodeWithScope:
		if len(b) < 4 {
			return Value{}, 0, newInvalidBSONError("buffer too short for code-with-scope length")
		}
		total := int32(binary.LittleEndian.Uint32(b[0:4]))
		if total < 1 || int(total) > len(b) {
			return Value{}, 0, newInvalidBSONError("declared code-with-scope length %d is inconsistent with available bytes", total)
		}
		rest := b[4:total]
		code, n1, err := decodeString(rest)
		if err != nil {
			return Value{}, 0, err
		}
		scope, n2, err := decodeDocument(rest[n1:], depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		if 4+n1+n2 != int(total) {
			return Value{}, 0, newInvalidBSONError("code-with-scope length %d disagrees with %d bytes consumed", total, 4+n1+n2)
		}
		return CodeScope(code, scope), int(total), nil

	case TypeInt32:
		if len(b) < 4 {
			return Value{}, 0, newInvalidBSONError("buffer too short for int32")
		}
		return Int32(int32(binary.LittleEndian.Uint32(b[:4]))), 4, nil

	case TypeTimestamp:
		if len(b) < 8 {
			return Value{}, 0, newInvalidBSONError("buffer too short for timestamp")
		}
		inc := binary.LittleEndian.Uint32(b[0:4])
		sec := binary.LittleEndian.Uint32(b[4:8])
		return TimestampVal(inc, sec), 8, nil

	case TypeInt64:
		if len(b) < 8 {
			return Value{}, 0, newInvalidBSONError("buffer too short for int64")
		}
		return Int64(int64(binary.LittleEndian.Uint64(b[:8]))), 8, nil

	case TypeMinKey:
		return MinKey(), 0, nil

	case TypeMaxKey:
		return MaxKey(), 0, nil

	default:
		return Value{}, 0, newInvalidBSONError("unknown element type tag 0x%02X", byte(tag))
	}
}
