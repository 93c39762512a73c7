// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
	"io"

	"github.com/mongokit/driver/bson"
)

// ReadRequest reads one frame from r and parses it as one of the six
// non-reply message kinds. This is used by test fakes standing in for a
// server, and by the request side of any future in-process transport;
// the client's own traffic only ever calls Write for requests and Read
// for replies.
func ReadRequest(r io.Reader) (Header, Message, error) {
	headerBuf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return Header{}, nil, err
	}
	header := Header{
		MessageLength: readInt32(headerBuf[0:4]),
		RequestID:     readInt32(headerBuf[4:8]),
		ResponseTo:    readInt32(headerBuf[8:12]),
		OpCode:        OpCode(readInt32(headerBuf[12:16])),
	}
	bodyLen := int(header.MessageLength) - HeaderLen
	if bodyLen < 0 {
		return header, nil, &ResponseError{Reason: "declared message length shorter than the header"}
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return header, nil, err
	}
	m, err := decodeRequestBody(header.OpCode, body)
	return header, m, err
}

// WriteReply serializes r as an OP_REPLY frame responding to responseTo
// and writes it to w. It exists for test fakes that stand in for a
// server; the driver itself never originates a reply.
func WriteReply(w io.Writer, requestID, responseTo int32, r Reply) error {
	body := make([]byte, 0, 20)
	body = appendInt32(body, int32(r.Flags))
	body = appendInt64(body, r.CursorID)
	body = appendInt32(body, r.StartingFrom)
	body = appendInt32(body, int32(len(r.Documents)))
	for _, doc := range r.Documents {
		docBytes, err := bson.Encode(doc)
		if err != nil {
			return err
		}
		body = append(body, docBytes...)
	}

	header := make([]byte, 0, HeaderLen)
	header = appendInt32(header, int32(HeaderLen+len(body)))
	header = appendInt32(header, requestID)
	header = appendInt32(header, responseTo)
	header = appendInt32(header, int32(OpReply))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func decodeRequestBody(opcode OpCode, body []byte) (Message, error) {
	switch opcode {
	case OpQuery:
		return decodeQuery(body)
	case OpInsert:
		return decodeInsert(body)
	case OpUpdate:
		return decodeUpdate(body)
	case OpDelete:
		return decodeDelete(body)
	case OpGetMore:
		return decodeGetMore(body)
	case OpKillCursors:
		return decodeKillCursors(body)
	default:
		return nil, fmt.Errorf("wiremessage: unsupported request opcode %s", opcode)
	}
}

func decodeQuery(body []byte) (Query, error) {
	if len(body) < 4 {
		return Query{}, &ResponseError{Reason: "query body too short for flags"}
	}
	q := Query{Flags: QueryFlags(readInt32(body[0:4]))}
	pos := 4

	ns, n, err := readCStringAt(body[pos:])
	if err != nil {
		return Query{}, err
	}
	q.Namespace = ns
	pos += n

	if len(body[pos:]) < 8 {
		return Query{}, &ResponseError{Reason: "query body too short for skip/returnCount"}
	}
	q.Skip = readInt32(body[pos : pos+4])
	q.ReturnCount = readInt32(body[pos+4 : pos+8])
	pos += 8

	doc, n, err := readDocumentAt(body[pos:])
	if err != nil {
		return Query{}, err
	}
	q.Selector = doc
	pos += n

	if pos < len(body) {
		proj, _, err := readDocumentAt(body[pos:])
		if err != nil {
			return Query{}, err
		}
		q.Projection = proj
	}
	return q, nil
}

func decodeInsert(body []byte) (Insert, error) {
	if len(body) < 4 {
		return Insert{}, &ResponseError{Reason: "insert body too short for flags"}
	}
	m := Insert{Flags: InsertFlags(readInt32(body[0:4]))}
	pos := 4

	ns, n, err := readCStringAt(body[pos:])
	if err != nil {
		return Insert{}, err
	}
	m.Namespace = ns
	pos += n

	for pos < len(body) {
		doc, n, err := readDocumentAt(body[pos:])
		if err != nil {
			return Insert{}, err
		}
		m.Documents = append(m.Documents, doc)
		pos += n
	}
	return m, nil
}

func decodeUpdate(body []byte) (Update, error) {
	if len(body) < 4 {
		return Update{}, &ResponseError{Reason: "update body too short for reserved field"}
	}
	pos := 4 // reserved

	ns, n, err := readCStringAt(body[pos:])
	if err != nil {
		return Update{}, err
	}
	pos += n

	if len(body[pos:]) < 4 {
		return Update{}, &ResponseError{Reason: "update body too short for flags"}
	}
	flags := UpdateFlags(readInt32(body[pos : pos+4]))
	pos += 4

	selector, n, err := readDocumentAt(body[pos:])
	if err != nil {
		return Update{}, err
	}
	pos += n

	update, _, err := readDocumentAt(body[pos:])
	if err != nil {
		return Update{}, err
	}

	return Update{Namespace: ns, Flags: flags, Selector: selector, Update: update}, nil
}

func decodeDelete(body []byte) (Delete, error) {
	if len(body) < 4 {
		return Delete{}, &ResponseError{Reason: "delete body too short for reserved field"}
	}
	pos := 4 // reserved

	ns, n, err := readCStringAt(body[pos:])
	if err != nil {
		return Delete{}, err
	}
	pos += n

	if len(body[pos:]) < 4 {
		return Delete{}, &ResponseError{Reason: "delete body too short for flags"}
	}
	flags := DeleteFlags(readInt32(body[pos : pos+4]))
	pos += 4

	selector, _, err := readDocumentAt(body[pos:])
	if err != nil {
		return Delete{}, err
	}

	return Delete{Namespace: ns, Flags: flags, Selector: selector}, nil
}

func decodeGetMore(body []byte) (GetMore, error) {
	if len(body) < 4 {
		return GetMore{}, &ResponseError{Reason: "getMore body too short for reserved field"}
	}
	pos := 4 // reserved

	ns, n, err := readCStringAt(body[pos:])
	if err != nil {
		return GetMore{}, err
	}
	pos += n

	if len(body[pos:]) < 12 {
		return GetMore{}, &ResponseError{Reason: "getMore body too short for returnCount/cursorID"}
	}
	returnCount := readInt32(body[pos : pos+4])
	cursorID := readInt64(body[pos+4 : pos+12])

	return GetMore{Namespace: ns, ReturnCount: returnCount, CursorID: cursorID}, nil
}

func decodeKillCursors(body []byte) (KillCursors, error) {
	if len(body) < 8 {
		return KillCursors{}, &ResponseError{Reason: "killCursors body too short for reserved/count fields"}
	}
	count := int(readInt32(body[4:8]))
	pos := 8

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		if len(body[pos:]) < 8 {
			return KillCursors{}, &ResponseError{Reason: "killCursors body truncated before declared count"}
		}
		ids = append(ids, readInt64(body[pos:pos+8]))
		pos += 8
	}
	return KillCursors{CursorIDs: ids}, nil
}

func readCStringAt(b []byte) (string, int, error) {
	for i, c := range b {
		if c == 0x00 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, &ResponseError{Reason: "cstring missing terminating NUL"}
}

func readDocumentAt(b []byte) (*bson.Document, int, error) {
	if len(b) < 4 {
		return nil, 0, &ResponseError{Reason: "buffer too short for document length"}
	}
	length := int(readInt32(b[0:4]))
	if length < 5 || length > len(b) {
		return nil, 0, &ResponseError{Reason: "declared document length is inconsistent with available bytes"}
	}
	doc, err := bson.Decode(b[:length])
	if err != nil {
		return nil, 0, &ResponseError{Reason: err.Error()}
	}
	return doc, length, nil
}
