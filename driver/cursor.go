// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"strings"

	"github.com/mongokit/driver/bson"
	"github.com/mongokit/driver/internal/logger"
	"github.com/mongokit/driver/mongoerr"
	"github.com/mongokit/driver/readpref"
	"github.com/mongokit/driver/topology"
	"github.com/mongokit/driver/wiremessage"
)

// config collects the Open-time parameters spec §4.4 names: batch size,
// flags, skip, limit, and an optional projection.
type config struct {
	skip       int32
	limit      int32
	batchSize  int32
	flags      wiremessage.QueryFlags
	projection *bson.Document
	log        *logger.Logger
}

// OpenOption configures Open.
type OpenOption func(*config)

// WithSkip sets the number of documents the initial query skips.
func WithSkip(n int32) OpenOption { return func(c *config) { c.skip = n } }

// WithLimit bounds the total number of documents the cursor will ever
// yield, even if the server replies with more. A limit of 0 means
// unbounded.
func WithLimit(n int32) OpenOption { return func(c *config) { c.limit = n } }

// WithBatchSize sets the number of documents requested per batch, both
// for the initial query and every subsequent getMore.
func WithBatchSize(n int32) OpenOption { return func(c *config) { c.batchSize = n } }

// WithQueryFlags sets the OP_QUERY flag bits for the initial request.
func WithQueryFlags(f wiremessage.QueryFlags) OpenOption { return func(c *config) { c.flags = f } }

// WithProjection attaches a projection document to the initial query.
// Ignored for command-cursor requests, which express projection inside
// the command document itself.
func WithProjection(doc *bson.Document) OpenOption { return func(c *config) { c.projection = doc } }

// WithLogger attaches a structured logger for cursor-lifecycle log
// entries.
func WithLogger(l *logger.Logger) OpenOption { return func(c *config) { c.log = l } }

// Cursor is a lazy, forward-only sequence of documents backed by a
// server-side cursor that is refilled in batches via getMore. It owns
// the Server used to reach that cursor (to acquire sockets for getMore
// and, eventually, KillCursors), the namespace getMore addresses, the
// server-assigned cursor id (0 once exhausted), the configured limit,
// a running count of returned documents, and a FIFO buffer of the
// current batch.
type Cursor struct {
	server    *topology.Server
	namespace string
	batchSize int32
	limit     int32
	cursorID  int64
	buffer    []*bson.Document
	count     int32
	log       *logger.Logger
	err       error
}

// isCommandNamespace reports whether ns addresses the command
// pseudo-collection, in which case the initial reply is a command
// result carrying a nested "cursor" document rather than a legacy
// query reply.
func isCommandNamespace(ns string) bool {
	return strings.HasSuffix(ns, ".$cmd")
}

// Open resolves a server via topo/rp, issues the initial request
// against namespace (either a command-cursor request to "<db>.$cmd" or
// a plain query against a collection namespace), and builds the Cursor
// from its reply.
func Open(ctx context.Context, topo *topology.Topology, rp readpref.ReadPref, namespace string, selector *bson.Document, opts ...OpenOption) (*Cursor, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	sel, err := topo.SelectServer(ctx, rp)
	if err != nil {
		return nil, err
	}

	conn, err := sel.Connection(ctx)
	if err != nil {
		return nil, err
	}

	q := wiremessage.Query{
		Namespace:   namespace,
		Flags:       cfg.flags,
		Skip:        cfg.skip,
		ReturnCount: cfg.batchSize,
		Selector:    selector,
		Projection:  cfg.projection,
	}

	if err := conn.WriteWireMessage(ctx, NextRequestID(), q); err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("write initial query", err)
	}

	_, reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("read initial reply", err)
	}
	sel.Release(conn)

	c := &Cursor{
		server:    sel.Server,
		namespace: namespace,
		batchSize: cfg.batchSize,
		limit:     cfg.limit,
		log:       cfg.log,
	}

	if isCommandNamespace(namespace) {
		if err := c.initFromCommandReply(reply); err != nil {
			return nil, err
		}
	} else {
		c.initFromLegacyReply(namespace, reply)
	}

	c.truncateToLimit()
	return c, nil
}

func (c *Cursor) initFromLegacyReply(namespace string, reply wiremessage.Reply) {
	c.namespace = namespace
	c.cursorID = reply.CursorID
	c.buffer = append(c.buffer, reply.Documents...)
	c.count += int32(len(reply.Documents))
}

func (c *Cursor) initFromCommandReply(reply wiremessage.Reply) error {
	if len(reply.Documents) == 0 {
		return &mongoerr.CursorNotFoundError{Reason: "command reply carried no documents"}
	}
	doc := reply.Documents[0]

	if v, ok := doc.Lookup("errmsg"); ok {
		if msg, ok := v.StringValueOK(); ok {
			opErr := &mongoerr.OperationError{Message: msg}
			if code, ok := lookupInt32(doc, "code"); ok {
				opErr.Code = code
			}
			return opErr
		}
	}

	v, ok := doc.Lookup("cursor")
	if !ok {
		return &mongoerr.CursorNotFoundError{Reason: "reply missing cursor sub-document"}
	}
	cursorDoc, ok := v.DocumentOK()
	if !ok {
		return &mongoerr.CursorNotFoundError{Reason: "cursor field was not a document"}
	}

	id, ok := lookupInt64(cursorDoc, "id")
	if !ok {
		return &mongoerr.CursorNotFoundError{Reason: "cursor document missing id"}
	}
	ns, ok := lookupString(cursorDoc, "ns")
	if !ok {
		return &mongoerr.CursorNotFoundError{Reason: "cursor document missing ns"}
	}
	batchVal, ok := cursorDoc.Lookup("firstBatch")
	if !ok {
		return &mongoerr.CursorNotFoundError{Reason: "cursor document missing firstBatch"}
	}
	batchArr, ok := batchVal.ArrayOK()
	if !ok {
		return &mongoerr.CursorNotFoundError{Reason: "firstBatch was not an array"}
	}

	c.namespace = ns
	c.cursorID = id
	for _, e := range batchArr.Elements() {
		if d, ok := e.Value.DocumentOK(); ok {
			c.buffer = append(c.buffer, d)
			c.count++
		}
	}
	return nil
}

func lookupInt32(doc *bson.Document, key string) (int32, bool) {
	v, ok := doc.Lookup(key)
	if !ok {
		return 0, false
	}
	return v.Int32OK()
}

func lookupInt64(doc *bson.Document, key string) (int64, bool) {
	v, ok := doc.Lookup(key)
	if !ok {
		return 0, false
	}
	if i, ok := v.Int64OK(); ok {
		return i, true
	}
	if i, ok := v.Int32OK(); ok {
		return int64(i), true
	}
	return 0, false
}

func lookupString(doc *bson.Document, key string) (string, bool) {
	v, ok := doc.Lookup(key)
	if !ok {
		return "", false
	}
	return v.StringValueOK()
}

// truncateToLimit drops any buffered documents beyond c.limit, honoring
// spec §4.4's strict "limit = n returns at most n documents even if the
// server replies with more" rule.
func (c *Cursor) truncateToLimit() {
	if c.limit <= 0 || c.count <= c.limit {
		return
	}
	overage := c.count - c.limit
	keep := int32(len(c.buffer)) - overage
	if keep < 0 {
		keep = 0
	}
	c.buffer = c.buffer[:keep]
	c.count = c.limit
}

// HasNext reports whether a subsequent call to Next would return a
// document, issuing a getMore to refill the buffer if necessary. Any
// getMore error is recorded (retrievable via Err) and leaves HasNext
// returning false from then on.
func (c *Cursor) HasNext(ctx context.Context) bool {
	if len(c.buffer) > 0 {
		return true
	}
	if c.limit > 0 && c.count >= c.limit {
		return false
	}
	if c.cursorID == 0 {
		return false
	}
	if c.err != nil {
		return false
	}
	if err := c.getMore(ctx); err != nil {
		c.err = err
		return false
	}
	return len(c.buffer) > 0
}

// Next returns the next document, refilling the buffer with a getMore
// if it is empty. It returns ErrCursorExhausted once the cursor has no
// more documents, or the getMore error that exhausted it.
func (c *Cursor) Next(ctx context.Context) (*bson.Document, error) {
	if !c.HasNext(ctx) {
		if c.err != nil {
			return nil, c.err
		}
		return nil, ErrCursorExhausted
	}
	doc := c.buffer[0]
	c.buffer = c.buffer[1:]
	return doc, nil
}

// NextN drains up to n documents, issuing as many getMore round trips
// as needed, stopping early if the cursor is exhausted.
func (c *Cursor) NextN(ctx context.Context, n int) ([]*bson.Document, error) {
	out := make([]*bson.Document, 0, n)
	for len(out) < n {
		doc, err := c.Next(ctx)
		if err == ErrCursorExhausted {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// NextBatch returns and clears the cursor's current buffer without
// issuing a getMore, or ErrCursorExhausted if the buffer is empty and no
// more batches remain.
func (c *Cursor) NextBatch() ([]*bson.Document, error) {
	if len(c.buffer) == 0 && c.cursorID == 0 {
		return nil, ErrCursorExhausted
	}
	batch := c.buffer
	c.buffer = nil
	return batch, nil
}

// Err returns the error, if any, that caused HasNext to stop short of
// the configured limit.
func (c *Cursor) Err() error { return c.err }

// ID returns the cursor's current server-assigned cursor id, 0 once
// exhausted.
func (c *Cursor) ID() int64 { return c.cursorID }

func (c *Cursor) getMore(ctx context.Context) error {
	conn, err := c.server.Connection(ctx)
	if err != nil {
		return err
	}

	gm := wiremessage.GetMore{
		Namespace:   c.namespace,
		ReturnCount: c.batchSize,
		CursorID:    c.cursorID,
	}
	if err := conn.WriteWireMessage(ctx, NextRequestID(), gm); err != nil {
		c.server.Discard(conn)
		return mongoerr.WrapIO("write getMore", err)
	}

	_, reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		c.server.Discard(conn)
		return mongoerr.WrapIO("read getMore reply", err)
	}
	c.server.Release(conn)

	if reply.CursorNotFound() {
		c.cursorID = 0
		return &mongoerr.CursorNotFoundError{CursorID: gm.CursorID}
	}

	c.buffer = append(c.buffer, reply.Documents...)
	c.count += int32(len(reply.Documents))
	c.cursorID = reply.CursorID
	c.truncateToLimit()

	if c.log != nil {
		c.log.Print(logger.ComponentCommand, logger.LevelDebug, "getMore succeeded", "namespace", c.namespace, "cursorID", c.cursorID, "returned", len(reply.Documents))
	}
	return nil
}

// Close releases the cursor's server-side resources if it still holds a
// live cursor id. Per spec §4.4 this is best-effort: KillCursors errors
// are swallowed, only logged if a logger was configured.
func (c *Cursor) Close(ctx context.Context) {
	if c.cursorID == 0 {
		return
	}
	id := c.cursorID
	c.cursorID = 0
	if err := KillCursors(ctx, c.server, id); err != nil && c.log != nil {
		c.log.Print(logger.ComponentCommand, logger.LevelDebug, "killCursors failed", "cursorID", id, "error", err.Error())
	}
}

// KillCursors releases one or more server-side cursors on server in a
// single round trip. This batching form is a supplement beyond spec
// §4.4's per-cursor release: a caller that needs to release several
// cursors at once (e.g. closing a database handle) can do so without one
// round trip per cursor.
func KillCursors(ctx context.Context, server *topology.Server, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	conn, err := server.Connection(ctx)
	if err != nil {
		return err
	}

	kc := wiremessage.KillCursors{CursorIDs: ids}
	if err := conn.WriteWireMessage(ctx, NextRequestID(), kc); err != nil {
		server.Discard(conn)
		return mongoerr.WrapIO("write killCursors", err)
	}
	server.Release(conn)
	return nil
}
