// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongo is a thin collection façade: it assembles command
// documents and delegates to the driver's cursor engine and topology
// server selector. It intentionally covers only Find, InsertOne, Count,
// and Distinct; aggregation, index, and authentication helpers remain
// out of scope.
package mongo

import (
	"context"

	"github.com/mongokit/driver/connection"
	"github.com/mongokit/driver/connstring"
	"github.com/mongokit/driver/readpref"
	"github.com/mongokit/driver/topology"
)

// Client is a handle to a cluster, reachable through a single monitored
// Topology.
type Client struct {
	topo           *topology.Topology
	readPreference readpref.ReadPref
}

// Connect parses uri with connstring.Parse and starts monitoring the
// resulting cluster.
func Connect(uri string) (*Client, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, err
	}

	var topoOpts []topology.Option
	topoOpts = append(topoOpts, topology.WithSeeds(cs.Hosts...))
	if cs.ReplicaSet != "" {
		topoOpts = append(topoOpts, topology.WithReplicaSet(cs.ReplicaSet))
	} else if len(cs.Hosts) == 1 {
		topoOpts = append(topoOpts, topology.WithDirectConnection())
	}

	// cs.User/cs.Password/cs.HasAuth are parsed but unused here: the
	// authentication handshake is out of scope (spec §1).
	var dialOpts []connection.Option
	topoOpts = append(topoOpts, topology.WithDialOptions(dialOpts...))

	topo, err := topology.New(topoOpts...)
	if err != nil {
		return nil, err
	}

	rp := readpref.New(readpref.Primary)
	if cs.HasReadPreference {
		rp = readpref.New(cs.ReadPreference).WithTags(cs.ReadPreferenceTags...)
	}

	return &Client{topo: topo, readPreference: rp}, nil
}

// Database returns a handle to the named database.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// Disconnect stops the client's topology monitoring and closes every
// pooled connection.
func (c *Client) Disconnect(_ context.Context) error {
	c.topo.Close()
	return nil
}
