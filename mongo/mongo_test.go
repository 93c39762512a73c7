// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mongokit/driver/address"
	"github.com/mongokit/driver/bson"
	"github.com/mongokit/driver/mongoerr"
	"github.com/mongokit/driver/readpref"
	"github.com/mongokit/driver/topology"
	"github.com/mongokit/driver/wiremessage"
)

func isMasterReplyDoc() *bson.Document {
	return bson.NewDocument(
		bson.C("ismaster", bson.Boolean(true)),
		bson.C("maxWireVersion", bson.Int32(9)),
	)
}

// handler decides how to respond to one non-heartbeat request; it
// returns the Reply to send back (or false to send nothing, for
// OP_INSERT and OP_KILL_CURSORS, which have no reply in the wire
// protocol).
type handler func(msg wiremessage.Message) (wiremessage.Reply, bool)

func fakeMongodServer(t *testing.T, handle handler) address.Host {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer nc.Close()
				for {
					_, msg, err := wiremessage.ReadRequest(nc)
					if err != nil {
						return
					}
					if q, ok := msg.(wiremessage.Query); ok && q.Namespace == "admin.$cmd" {
						wiremessage.WriteReply(nc, 1, 1, wiremessage.Reply{NumberReturned: 1, Documents: []*bson.Document{isMasterReplyDoc()}})
						continue
					}
					if reply, ok := handle(msg); ok {
						wiremessage.WriteReply(nc, 1, 1, reply)
					}
				}
			}()
		}
	}()

	return address.New(ln.Addr().String())
}

func testClient(t *testing.T, handle handler) *Client {
	t.Helper()
	addr := fakeMongodServer(t, handle)

	topo, err := topology.New(
		topology.WithSeeds(addr),
		topology.WithDirectConnection(),
		topology.WithMonitorOptions(topology.WithHeartbeatInterval(50*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}
	t.Cleanup(topo.Close)

	return &Client{topo: topo, readPreference: readpref.New(readpref.Primary)}
}

func TestCollectionFindDrainsCommandCursor(t *testing.T) {
	batch := bson.Arr(bson.Doc(bson.NewDocument(bson.C("name", bson.String("ada")))))
	client := testClient(t, func(msg wiremessage.Message) (wiremessage.Reply, bool) {
		q, ok := msg.(wiremessage.Query)
		if !ok || q.Namespace != "test.$cmd" {
			return wiremessage.Reply{}, false
		}
		return wiremessage.Reply{Documents: []*bson.Document{bson.NewDocument(
			bson.C("ok", bson.Double(1)),
			bson.C("cursor", bson.Doc(bson.NewDocument(
				bson.C("id", bson.Int64(0)),
				bson.C("ns", bson.String("test.people")),
				bson.C("firstBatch", batch),
			))),
		)}}, true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	coll := client.Database("test").Collection("people")
	cur, err := coll.Find(ctx, bson.NewDocument())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	docs, err := cur.NextN(ctx, 10)
	if err != nil {
		t.Fatalf("NextN: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if name, _ := docs[0].Lookup("name"); name.Type() == 0 {
		t.Fatalf("missing name field")
	}
}

func TestCollectionInsertOneGeneratesIDAndAcksViaGetLastError(t *testing.T) {
	var inserted *bson.Document
	client := testClient(t, func(msg wiremessage.Message) (wiremessage.Reply, bool) {
		switch m := msg.(type) {
		case wiremessage.Insert:
			inserted = m.Documents[0]
			return wiremessage.Reply{}, false
		case wiremessage.Query:
			if m.Namespace == "test.$cmd" {
				return wiremessage.Reply{Documents: []*bson.Document{bson.NewDocument(bson.C("ok", bson.Double(1)))}}, true
			}
		}
		return wiremessage.Reply{}, false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	coll := client.Database("test").Collection("people")
	doc := bson.NewDocument(bson.C("name", bson.String("grace")))
	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	if res.InsertedID.IsNull() {
		t.Fatalf("expected a generated InsertedID")
	}

	deadline := time.Now().Add(2 * time.Second)
	for inserted == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if inserted == nil {
		t.Fatalf("server never observed the OP_INSERT")
	}
	if _, ok := inserted.Lookup("_id"); !ok {
		t.Fatalf("inserted document missing generated _id: %+v", inserted)
	}
}

func TestCollectionInsertOneSurfacesWriteError(t *testing.T) {
	client := testClient(t, func(msg wiremessage.Message) (wiremessage.Reply, bool) {
		if q, ok := msg.(wiremessage.Query); ok && q.Namespace == "test.$cmd" {
			return wiremessage.Reply{Documents: []*bson.Document{bson.NewDocument(
				bson.C("ok", bson.Double(1)),
				bson.C("err", bson.String("duplicate key")),
				bson.C("code", bson.Int32(11000)),
			)}}, true
		}
		return wiremessage.Reply{}, false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	coll := client.Database("test").Collection("people")
	_, err := coll.InsertOne(ctx, bson.NewDocument(bson.C("_id", bson.Int32(1))))
	we, ok := err.(*mongoerr.WriteError)
	if !ok {
		t.Fatalf("err = %v (%T), want *mongoerr.WriteError", err, err)
	}
	if we.Code != 11000 {
		t.Fatalf("Code = %d, want 11000", we.Code)
	}
}

func TestCollectionCount(t *testing.T) {
	client := testClient(t, func(msg wiremessage.Message) (wiremessage.Reply, bool) {
		if q, ok := msg.(wiremessage.Query); ok && q.Namespace == "test.$cmd" {
			return wiremessage.Reply{Documents: []*bson.Document{bson.NewDocument(
				bson.C("n", bson.Int32(7)),
				bson.C("ok", bson.Double(1)),
			)}}, true
		}
		return wiremessage.Reply{}, false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	n, err := client.Database("test").Collection("people").Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 7 {
		t.Fatalf("Count = %d, want 7", n)
	}
}

func TestCollectionDistinct(t *testing.T) {
	client := testClient(t, func(msg wiremessage.Message) (wiremessage.Reply, bool) {
		if q, ok := msg.(wiremessage.Query); ok && q.Namespace == "test.$cmd" {
			return wiremessage.Reply{Documents: []*bson.Document{bson.NewDocument(
				bson.C("values", bson.Arr(bson.String("a"), bson.String("b"))),
				bson.C("ok", bson.Double(1)),
			)}}, true
		}
		return wiremessage.Reply{}, false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	vals, err := client.Database("test").Collection("people").Distinct(ctx, "name", nil)
	if err != nil {
		t.Fatalf("Distinct: %v", err)
	}
	if len(vals) != 2 {
		t.Fatalf("got %d values, want 2", len(vals))
	}
}

func TestCollectionCountSurfacesOperationError(t *testing.T) {
	client := testClient(t, func(msg wiremessage.Message) (wiremessage.Reply, bool) {
		if q, ok := msg.(wiremessage.Query); ok && q.Namespace == "test.$cmd" {
			return wiremessage.Reply{Documents: []*bson.Document{bson.NewDocument(
				bson.C("ok", bson.Double(0)),
				bson.C("errmsg", bson.String("ns not found")),
			)}}, true
		}
		return wiremessage.Reply{}, false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := client.Database("test").Collection("missing").Count(ctx, nil)
	if _, ok := err.(*mongoerr.OperationError); !ok {
		t.Fatalf("err = %v (%T), want *mongoerr.OperationError", err, err)
	}
}
