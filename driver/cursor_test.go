// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

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

// scriptedServer accepts connections and replies to every request: an
// "admin.$cmd" query gets an isMaster reply so the topology's Monitor
// stays happy, and every other request is answered from replies in
// order, one per non-heartbeat request received.
func scriptedServer(t *testing.T, replies ...wiremessage.Reply) address.Host {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		idx := 0
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
					switch m := msg.(type) {
					case wiremessage.Query:
						if m.Namespace == "admin.$cmd" {
							wiremessage.WriteReply(nc, 1, 1, wiremessage.Reply{NumberReturned: 1, Documents: []*bson.Document{isMasterReplyDoc()}})
							continue
						}
						if idx < len(replies) {
							wiremessage.WriteReply(nc, 1, 1, replies[idx])
							idx++
						}
					case wiremessage.GetMore:
						if idx < len(replies) {
							wiremessage.WriteReply(nc, 1, 1, replies[idx])
							idx++
						}
					case wiremessage.KillCursors:
						// fire-and-forget: no reply expected.
					}
				}
			}()
		}
	}()

	return address.New(ln.Addr().String())
}

func openDirectTopology(t *testing.T, addr address.Host) *topology.Topology {
	t.Helper()
	topo, err := topology.New(
		topology.WithSeeds(addr),
		topology.WithDirectConnection(),
		topology.WithMonitorOptions(topology.WithHeartbeatInterval(50*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}
	t.Cleanup(topo.Close)
	return topo
}

func TestOpenLegacyQueryAndDrainViaGetMore(t *testing.T) {
	first := wiremessage.Reply{
		CursorID:       42,
		NumberReturned: 1,
		Documents:      []*bson.Document{bson.NewDocument(bson.C("n", bson.Int32(1)))},
	}
	second := wiremessage.Reply{
		CursorID:       0,
		NumberReturned: 1,
		Documents:      []*bson.Document{bson.NewDocument(bson.C("n", bson.Int32(2)))},
	}
	addr := scriptedServer(t, first, second)
	topo := openDirectTopology(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cur, err := Open(ctx, topo, readpref.New(readpref.Primary), "test.coll", bson.NewDocument())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if cur.ID() != 42 {
		t.Fatalf("ID() = %d, want 42", cur.ID())
	}

	docs, err := cur.NextN(ctx, 10)
	if err != nil {
		t.Fatalf("NextN: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if cur.HasNext(ctx) {
		t.Fatalf("expected cursor to be exhausted after draining both batches")
	}
}

func TestOpenCommandCursorReply(t *testing.T) {
	batch := bson.Arr(bson.Doc(bson.NewDocument(bson.C("n", bson.Int32(1)))))
	cmdReply := wiremessage.Reply{
		NumberReturned: 1,
		Documents: []*bson.Document{bson.NewDocument(
			bson.C("ok", bson.Double(1)),
			bson.C("cursor", bson.Doc(bson.NewDocument(
				bson.C("id", bson.Int64(0)),
				bson.C("ns", bson.String("test.coll")),
				bson.C("firstBatch", batch),
			))),
		)},
	}
	addr := scriptedServer(t, cmdReply)
	topo := openDirectTopology(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cur, err := Open(ctx, topo, readpref.New(readpref.Primary), "test.$cmd", bson.NewDocument(bson.C("find", bson.String("coll"))))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if cur.ID() != 0 {
		t.Fatalf("ID() = %d, want 0 (already exhausted server-side)", cur.ID())
	}

	doc, err := cur.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if v, ok := doc.Lookup("n"); !ok {
		t.Fatalf("missing n field in %+v", doc)
	} else if n, _ := v.Int32OK(); n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}

	if _, err := cur.Next(ctx); err != ErrCursorExhausted {
		t.Fatalf("err = %v, want ErrCursorExhausted", err)
	}
}

func TestCommandReplyErrmsgSurfacesOperationError(t *testing.T) {
	errReply := wiremessage.Reply{
		NumberReturned: 1,
		Documents: []*bson.Document{bson.NewDocument(
			bson.C("ok", bson.Double(0)),
			bson.C("errmsg", bson.String("no such collection")),
			bson.C("code", bson.Int32(26)),
		)},
	}
	addr := scriptedServer(t, errReply)
	topo := openDirectTopology(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := Open(ctx, topo, readpref.New(readpref.Primary), "test.$cmd", bson.NewDocument(bson.C("find", bson.String("coll"))))
	opErr, ok := err.(*mongoerr.OperationError)
	if !ok {
		t.Fatalf("err = %v (%T), want *mongoerr.OperationError", err, err)
	}
	if opErr.Code != 26 {
		t.Fatalf("Code = %d, want 26", opErr.Code)
	}
}

func TestLimitTruncatesClientSide(t *testing.T) {
	reply := wiremessage.Reply{
		CursorID:       7,
		NumberReturned: 3,
		Documents: []*bson.Document{
			bson.NewDocument(bson.C("n", bson.Int32(1))),
			bson.NewDocument(bson.C("n", bson.Int32(2))),
			bson.NewDocument(bson.C("n", bson.Int32(3))),
		},
	}
	addr := scriptedServer(t, reply)
	topo := openDirectTopology(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cur, err := Open(ctx, topo, readpref.New(readpref.Primary), "test.coll", bson.NewDocument(), WithLimit(2))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	docs, err := cur.NextN(ctx, 10)
	if err != nil {
		t.Fatalf("NextN: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want limit-truncated 2", len(docs))
	}
}

func TestGetMoreCursorNotFound(t *testing.T) {
	first := wiremessage.Reply{CursorID: 99, NumberReturned: 0}
	notFound := wiremessage.Reply{Flags: wiremessage.ReplyCursorNotFound}
	addr := scriptedServer(t, first, notFound)
	topo := openDirectTopology(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cur, err := Open(ctx, topo, readpref.New(readpref.Primary), "test.coll", bson.NewDocument())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if cur.HasNext(ctx) {
		t.Fatalf("expected HasNext to report false once getMore reports cursor-not-found")
	}
	if _, ok := cur.Err().(*mongoerr.CursorNotFoundError); !ok {
		t.Fatalf("Err() = %v, want *mongoerr.CursorNotFoundError", cur.Err())
	}
}
