// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"testing"
	"time"

	"github.com/mongokit/driver/bson"
	"github.com/mongokit/driver/readpref"
)

func standaloneIsMasterDoc() *bson.Document {
	return bson.NewDocument(
		bson.C("ismaster", bson.Boolean(true)),
		bson.C("maxWireVersion", bson.Int32(9)),
	)
}

func TestTopologySelectsDirectStandalone(t *testing.T) {
	addr := isMasterServer(t, standaloneIsMasterDoc())

	topo, err := New(WithSeeds(addr), WithDirectConnection(), WithMonitorOptions(WithHeartbeatInterval(50*time.Millisecond)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer topo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sel, err := topo.SelectServer(ctx, readpref.New(readpref.Primary))
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if sel.Description.Type != Standalone {
		t.Fatalf("Type = %v, want Standalone", sel.Description.Type)
	}
}

func TestTopologyDiscoversSecondSeedFromPrimary(t *testing.T) {
	addrB := isMasterServer(t, primaryIsMasterDoc("rs0"))
	addrA := isMasterServer(t, primaryIsMasterDoc("rs0", addrB.String()))

	topo, err := New(
		WithSeeds(addrA),
		WithReplicaSet("rs0"),
		WithMonitorOptions(WithHeartbeatInterval(50*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer topo.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		desc := topo.Description()
		if _, ok := desc.Servers[addrB]; ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to be discovered from %s's host list", addrB, addrA)
}

func TestTopologySelectServerTimesOutWithNoMatch(t *testing.T) {
	addr := isMasterServer(t, bson.NewDocument(
		bson.C("ismaster", bson.Boolean(false)),
		bson.C("secondary", bson.Boolean(true)),
		bson.C("setName", bson.String("rs0")),
	))

	topo, err := New(
		WithSeeds(addr),
		WithReplicaSet("rs0"),
		WithMonitorOptions(WithHeartbeatInterval(50*time.Millisecond)),
		WithServerSelectionTimeout(300*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer topo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = topo.SelectServer(ctx, readpref.New(readpref.Primary))
	if err != ErrServerSelectionTimeout {
		t.Fatalf("err = %v, want ErrServerSelectionTimeout", err)
	}
}

func TestTopologyCloseUnblocksSelectServer(t *testing.T) {
	addr := isMasterServer(t, bson.NewDocument(
		bson.C("ismaster", bson.Boolean(false)),
		bson.C("secondary", bson.Boolean(true)),
		bson.C("setName", bson.String("rs0")),
	))

	topo, err := New(
		WithSeeds(addr),
		WithReplicaSet("rs0"),
		WithMonitorOptions(WithHeartbeatInterval(50*time.Millisecond)),
		WithServerSelectionTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := topo.SelectServer(context.Background(), readpref.New(readpref.Primary))
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	topo.Close()

	select {
	case err := <-done:
		if err != ErrTopologyClosed {
			t.Fatalf("err = %v, want ErrTopologyClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for SelectServer to unblock on Close")
	}
}
