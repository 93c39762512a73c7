// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"

	"github.com/mongokit/driver/bson"
	"github.com/mongokit/driver/bson/objectid"
	"github.com/mongokit/driver/driver"
	"github.com/mongokit/driver/mongoerr"
	"github.com/mongokit/driver/wiremessage"
)

// Collection performs Find, InsertOne, Count, and Distinct operations
// against a single collection, assembling the command documents those
// operations require and delegating everything else to the driver
// package. Index, aggregation, and authentication helpers remain out of
// scope.
type Collection struct {
	db        *Database
	name      string
	namespace string
}

// Name returns the collection's bare name (without the database
// prefix).
func (c *Collection) Name() string { return c.name }

// FindOptions configures Find.
type FindOptions struct {
	Sort       *bson.Document
	Projection *bson.Document
	Skip       int32
	Limit      int32
	BatchSize  int32
}

// Find runs a find command against the collection through the
// command-cursor protocol (§4.4), returning a lazily-refilled Cursor
// over the matching documents. A nil filter matches every document.
func (c *Collection) Find(ctx context.Context, filter *bson.Document, opts ...*FindOptions) (*driver.Cursor, error) {
	if filter == nil {
		filter = bson.NewDocument()
	}
	o := mergeFindOptions(opts)

	cmd := bson.NewDocument(
		bson.C("find", bson.String(c.name)),
		bson.C("filter", bson.Doc(filter)),
	)
	if o.Sort != nil {
		cmd.Append("sort", bson.Doc(o.Sort))
	}
	if o.Projection != nil {
		cmd.Append("projection", bson.Doc(o.Projection))
	}
	if o.Skip != 0 {
		cmd.Append("skip", bson.Int32(o.Skip))
	}
	if o.BatchSize != 0 {
		cmd.Append("batchSize", bson.Int32(o.BatchSize))
	}

	var cursorOpts []driver.OpenOption
	if o.Limit != 0 {
		cursorOpts = append(cursorOpts, driver.WithLimit(o.Limit))
	}
	if o.BatchSize != 0 {
		cursorOpts = append(cursorOpts, driver.WithBatchSize(o.BatchSize))
	}

	return driver.Open(ctx, c.db.client.topo, c.db.client.readPreference, c.db.name+".$cmd", cmd, cursorOpts...)
}

func mergeFindOptions(opts []*FindOptions) FindOptions {
	var merged FindOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		merged = *o
	}
	return merged
}

// InsertOneResult reports the outcome of InsertOne.
type InsertOneResult struct {
	InsertedID bson.Value
}

// InsertOne writes doc to the collection via a legacy OP_INSERT frame,
// followed by a getLastError command that turns the fire-and-forget
// wire insert into an acknowledged write: a non-empty "err" field in its
// reply (with "code", if present) surfaces as a *mongoerr.WriteError.
// If doc has no "_id" field, one
// is generated and inserted before the document is sent, mirroring how
// the server would otherwise assign it.
func (c *Collection) InsertOne(ctx context.Context, doc *bson.Document) (*InsertOneResult, error) {
	insertedID := bson.ObjectID(objectid.New())
	if v, ok := doc.Lookup("_id"); ok {
		insertedID = v
	} else {
		doc = doc.Copy().Append("_id", insertedID)
	}

	sel, err := c.db.client.topo.SelectServer(ctx, c.db.client.readPreference)
	if err != nil {
		return nil, err
	}
	conn, err := sel.Connection(ctx)
	if err != nil {
		return nil, err
	}

	ins := wiremessage.Insert{Namespace: c.namespace, Documents: []*bson.Document{doc}}
	if err := conn.WriteWireMessage(ctx, driver.NextRequestID(), ins); err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("write insert", err)
	}

	gle := bson.NewDocument(bson.C("getLastError", bson.Int32(1)))
	q := wiremessage.Query{Namespace: c.db.name + ".$cmd", Selector: gle, ReturnCount: -1}
	if err := conn.WriteWireMessage(ctx, driver.NextRequestID(), q); err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("write getLastError", err)
	}
	_, reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("read getLastError reply", err)
	}
	sel.Release(conn)

	if err := writeErrorFromGetLastError(reply); err != nil {
		return nil, err
	}
	return &InsertOneResult{InsertedID: insertedID}, nil
}

func writeErrorFromGetLastError(reply wiremessage.Reply) error {
	if len(reply.Documents) == 0 {
		return nil
	}
	doc := reply.Documents[0]
	v, ok := doc.Lookup("err")
	if !ok {
		return nil
	}
	msg, ok := v.StringValueOK()
	if !ok || msg == "" {
		return nil
	}
	we := &mongoerr.WriteError{Message: msg}
	if code, ok := doc.Lookup("code"); ok {
		if c, ok := code.Int32OK(); ok {
			we.Code = c
		}
	}
	return we
}

// Count runs the count command against the collection, returning the
// number of documents matching filter (or the whole collection if
// filter is nil).
func (c *Collection) Count(ctx context.Context, filter *bson.Document) (int64, error) {
	if filter == nil {
		filter = bson.NewDocument()
	}
	cmd := bson.NewDocument(
		bson.C("count", bson.String(c.name)),
		bson.C("query", bson.Doc(filter)),
	)
	reply, err := c.runCommand(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, ok := reply.Lookup("n")
	if !ok {
		return 0, &mongoerr.OperationError{Message: "count reply missing n"}
	}
	if n, ok := v.Int64OK(); ok {
		return n, nil
	}
	if n, ok := v.Int32OK(); ok {
		return int64(n), nil
	}
	return 0, &mongoerr.OperationError{Message: "count reply's n field was not numeric"}
}

// Distinct runs the distinct command against the collection, returning
// the distinct values of fieldName across documents matching filter.
func (c *Collection) Distinct(ctx context.Context, fieldName string, filter *bson.Document) ([]bson.Value, error) {
	if filter == nil {
		filter = bson.NewDocument()
	}
	cmd := bson.NewDocument(
		bson.C("distinct", bson.String(c.name)),
		bson.C("key", bson.String(fieldName)),
		bson.C("query", bson.Doc(filter)),
	)
	reply, err := c.runCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	v, ok := reply.Lookup("values")
	if !ok {
		return nil, &mongoerr.OperationError{Message: "distinct reply missing values"}
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil, &mongoerr.OperationError{Message: "distinct reply's values field was not an array"}
	}
	values := make([]bson.Value, 0, arr.Len())
	for _, e := range arr.Elements() {
		values = append(values, e.Value)
	}
	return values, nil
}

// runCommand sends cmd as an OP_QUERY against "<db>.$cmd", returning the
// single reply document. A non-empty "errmsg" field surfaces as a
// *mongoerr.OperationError.
func (c *Collection) runCommand(ctx context.Context, cmd *bson.Document) (*bson.Document, error) {
	sel, err := c.db.client.topo.SelectServer(ctx, c.db.client.readPreference)
	if err != nil {
		return nil, err
	}
	conn, err := sel.Connection(ctx)
	if err != nil {
		return nil, err
	}

	q := wiremessage.Query{Namespace: c.db.name + ".$cmd", Selector: cmd, ReturnCount: -1}
	if err := conn.WriteWireMessage(ctx, driver.NextRequestID(), q); err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("write command", err)
	}
	_, reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		sel.Discard(conn)
		return nil, mongoerr.WrapIO("read command reply", err)
	}
	sel.Release(conn)

	if len(reply.Documents) == 0 {
		return nil, &mongoerr.OperationError{Message: "command reply carried no documents"}
	}
	doc := reply.Documents[0]
	if v, ok := doc.Lookup("errmsg"); ok {
		if msg, ok := v.StringValueOK(); ok && msg != "" {
			opErr := &mongoerr.OperationError{Message: msg}
			if code, ok := doc.Lookup("code"); ok {
				if n, ok := code.Int32OK(); ok {
					opErr.Code = n
				}
			}
			return nil, opErr
		}
	}
	return doc, nil
}
