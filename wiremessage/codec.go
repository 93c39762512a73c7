// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mongokit/driver/bson"
)

// ResponseError indicates a reply frame did not conform to the wire
// protocol: a non-reply opcode, a truncated body, or an unrecognized
// compressor.
type ResponseError struct {
	Reason string
}

func (e *ResponseError) Error() string { return "wiremessage: " + e.Reason }

// ErrNotReply is returned by Write if asked to write a Reply message;
// only the server writes replies, and this driver only ever acts as a
// client.
var ErrNotReply = errors.New("wiremessage: cannot write a reply message")

// Compressor performs the negotiated wire compression for OP_COMPRESSED
// envelopes. Implementations live in the connection package, which is
// where the corresponding third-party codecs (snappy, zlib) are wired
// in; this package only understands the envelope framing.
type Compressor interface {
	ID() CompressorID
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst []byte, src []byte) ([]byte, error)
}

func encodeBody(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Query:
		return encodeQuery(v)
	case Insert:
		return encodeInsert(v)
	case Update:
		return encodeUpdate(v)
	case Delete:
		return encodeDelete(v)
	case GetMore:
		return encodeGetMore(v)
	case KillCursors:
		return encodeKillCursors(v)
	case Reply:
		return nil, ErrNotReply
	default:
		return nil, fmt.Errorf("wiremessage: unsupported message type %T", m)
	}
}

// Write serializes m, prefixed by a header carrying requestID, and
// writes it to w. If compressor is non-nil and not the no-op
// compressor, the body is wrapped in an OP_COMPRESSED envelope.
func Write(w io.Writer, requestID int32, m Message, compressor Compressor) error {
	if m.OpCode() == OpReply {
		return ErrNotReply
	}

	body, err := encodeBody(m)
	if err != nil {
		return err
	}
	opcode := m.OpCode()

	if compressor != nil && compressor.ID() != CompressorNoop {
		compressed, cerr := compressor.Compress(nil, body)
		if cerr == nil {
			envelope := make([]byte, 0, 9+len(compressed))
			envelope = appendInt32(envelope, int32(opcode))
			envelope = appendInt32(envelope, int32(len(body)))
			envelope = append(envelope, byte(compressor.ID()))
			envelope = append(envelope, compressed...)
			body = envelope
			opcode = OpCompressed
		}
	}

	header := make([]byte, 0, HeaderLen)
	header = appendInt32(header, int32(HeaderLen+len(body)))
	header = appendInt32(header, requestID)
	header = appendInt32(header, 0)
	header = appendInt32(header, int32(opcode))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Read reads exactly one frame from r and parses it as a Reply. If the
// frame is an OP_COMPRESSED envelope, it is unwrapped using compressors
// (keyed by CompressorID) before being interpreted. Any opcode other
// than reply (after unwrapping) is a *ResponseError.
func Read(r io.Reader, compressors map[CompressorID]Compressor) (Header, Reply, error) {
	headerBuf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return Header{}, Reply{}, err
	}

	header := Header{
		MessageLength: readInt32(headerBuf[0:4]),
		RequestID:     readInt32(headerBuf[4:8]),
		ResponseTo:    readInt32(headerBuf[8:12]),
		OpCode:        OpCode(readInt32(headerBuf[12:16])),
	}

	bodyLen := int(header.MessageLength) - HeaderLen
	if bodyLen < 0 {
		return header, Reply{}, &ResponseError{Reason: fmt.Sprintf("declared message length %d is shorter than the header", header.MessageLength)}
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return header, Reply{}, err
	}

	opcode := header.OpCode
	if opcode == OpCompressed {
		var err error
		opcode, body, err = decompressEnvelope(body, compressors)
		if err != nil {
			return header, Reply{}, err
		}
	}

	if opcode != OpReply {
		return header, Reply{}, &ResponseError{Reason: fmt.Sprintf("expected opcode %s, got %s", OpReply, opcode)}
	}

	reply, err := decodeReply(body)
	return header, reply, err
}

func decompressEnvelope(body []byte, compressors map[CompressorID]Compressor) (OpCode, []byte, error) {
	if len(body) < 9 {
		return 0, nil, &ResponseError{Reason: "compressed envelope shorter than its fixed header"}
	}
	originalOpcode := OpCode(readInt32(body[0:4]))
	uncompressedSize := readInt32(body[4:8])
	compressorID := CompressorID(body[8])
	compressed := body[9:]

	if compressorID == CompressorNoop {
		if int(uncompressedSize) != len(compressed) {
			return 0, nil, &ResponseError{Reason: "noop-compressed envelope length mismatch"}
		}
		return originalOpcode, compressed, nil
	}

	compressor, ok := compressors[compressorID]
	if !ok {
		return 0, nil, &ResponseError{Reason: fmt.Sprintf("no decompressor registered for compressor %s", compressorID)}
	}
	dst := make([]byte, 0, uncompressedSize)
	decompressed, err := compressor.Decompress(dst, compressed)
	if err != nil {
		return 0, nil, &ResponseError{Reason: fmt.Sprintf("decompressing %s envelope: %v", compressorID, err)}
	}
	if int32(len(decompressed)) != uncompressedSize {
		return 0, nil, &ResponseError{Reason: "decompressed size disagrees with envelope's declared uncompressed size"}
	}
	return originalOpcode, decompressed, nil
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0x00)
}

func readInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func readInt64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

func encodeQuery(q Query) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendInt32(buf, int32(q.Flags))
	buf = appendCString(buf, q.Namespace)
	buf = appendInt32(buf, q.Skip)
	buf = appendInt32(buf, q.ReturnCount)

	selector := q.Selector
	if selector == nil {
		selector = bson.NewDocument()
	}
	docBytes, err := bson.Encode(selector)
	if err != nil {
		return nil, err
	}
	buf = append(buf, docBytes...)

	if q.Projection != nil {
		projBytes, err := bson.Encode(q.Projection)
		if err != nil {
			return nil, err
		}
		buf = append(buf, projBytes...)
	}
	return buf, nil
}

func encodeInsert(m Insert) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendInt32(buf, int32(m.Flags))
	buf = appendCString(buf, m.Namespace)
	for _, doc := range m.Documents {
		docBytes, err := bson.Encode(doc)
		if err != nil {
			return nil, err
		}
		buf = append(buf, docBytes...)
	}
	return buf, nil
}

func encodeUpdate(m Update) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, m.Namespace)
	buf = appendInt32(buf, int32(m.Flags))

	selBytes, err := bson.Encode(m.Selector)
	if err != nil {
		return nil, err
	}
	buf = append(buf, selBytes...)

	updBytes, err := bson.Encode(m.Update)
	if err != nil {
		return nil, err
	}
	buf = append(buf, updBytes...)
	return buf, nil
}

func encodeDelete(m Delete) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, m.Namespace)
	buf = appendInt32(buf, int32(m.Flags))

	selBytes, err := bson.Encode(m.Selector)
	if err != nil {
		return nil, err
	}
	buf = append(buf, selBytes...)
	return buf, nil
}

func encodeGetMore(m GetMore) ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, m.Namespace)
	buf = appendInt32(buf, m.ReturnCount)
	buf = appendInt64(buf, m.CursorID)
	return buf, nil
}

func encodeKillCursors(m KillCursors) ([]byte, error) {
	buf := make([]byte, 0, 16+8*len(m.CursorIDs))
	buf = appendInt32(buf, 0) // reserved
	buf = appendInt32(buf, int32(len(m.CursorIDs)))
	for _, id := range m.CursorIDs {
		buf = appendInt64(buf, id)
	}
	return buf, nil
}

func decodeReply(body []byte) (Reply, error) {
	if len(body) < 20 {
		return Reply{}, &ResponseError{Reason: "reply body shorter than its fixed fields"}
	}
	r := Reply{
		Flags:          ReplyFlags(readInt32(body[0:4])),
		CursorID:       readInt64(body[4:12]),
		StartingFrom:   readInt32(body[12:16]),
		NumberReturned: readInt32(body[16:20]),
	}

	pos := 20
	docs := make([]*bson.Document, 0, r.NumberReturned)
	for i := int32(0); i < r.NumberReturned; i++ {
		if pos >= len(body) {
			return Reply{}, &ResponseError{Reason: "reply declared more documents than its body contains"}
		}
		remaining := body[pos:]
		if len(remaining) < 4 {
			return Reply{}, &ResponseError{Reason: "truncated document length in reply body"}
		}
		length := int(readInt32(remaining[0:4]))
		if length < 5 || length > len(remaining) {
			return Reply{}, &ResponseError{Reason: "declared document length is inconsistent with reply body"}
		}
		doc, err := bson.Decode(remaining[:length])
		if err != nil {
			return Reply{}, &ResponseError{Reason: fmt.Sprintf("decoding reply document %d: %v", i, err)}
		}
		docs = append(docs, doc)
		pos += length
	}
	r.Documents = docs

	return r, nil
}
