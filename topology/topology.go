// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mongokit/driver/address"
	"github.com/mongokit/driver/connection"
	"github.com/mongokit/driver/internal/lock"
	"github.com/mongokit/driver/readpref"
)

// DefaultServerSelectionTimeout bounds how long SelectServer waits for a
// suitable server to appear before giving up.
const DefaultServerSelectionTimeout = 30 * time.Second

type config struct {
	seeds                  []address.Host
	kind                   TopologyType
	replicaSet             string
	dialOpts               []connection.Option
	monitorOpts            []MonitorOption
	serverSelectionTimeout time.Duration
}

// Option configures a Topology.
type Option func(*config)

// WithSeeds sets the initial server list discovered from a connection
// string or direct address.
func WithSeeds(seeds ...address.Host) Option {
	return func(c *config) { c.seeds = seeds }
}

// WithReplicaSet marks the topology as a named replica set, seeding
// TopologyReplicaSetNoPrimary instead of waiting for the first
// heartbeat to decide.
func WithReplicaSet(name string) Option {
	return func(c *config) { c.replicaSet = name; c.kind = TopologyReplicaSetNoPrimary }
}

// WithDirectConnection marks the topology as a single direct connection
// rather than a monitored cluster.
func WithDirectConnection() Option {
	return func(c *config) { c.kind = TopologySingle }
}

// WithDialOptions sets the connection.Option values used for every
// server's pool and heartbeat connections.
func WithDialOptions(opts ...connection.Option) Option {
	return func(c *config) { c.dialOpts = opts }
}

// WithMonitorOptions sets the MonitorOption values used for every
// server's heartbeat loop.
func WithMonitorOptions(opts ...MonitorOption) Option {
	return func(c *config) { c.monitorOpts = opts }
}

// WithServerSelectionTimeout overrides DefaultServerSelectionTimeout.
func WithServerSelectionTimeout(d time.Duration) Option {
	return func(c *config) { c.serverSelectionTimeout = d }
}

// Topology tracks the live TopologyDescription for a deployment,
// running one Monitor per known server and serving SelectServer
// against the latest folded description.
type Topology struct {
	cfg *config

	descGuard *lock.Guarded[TopologyDescription]

	mu      sync.Mutex
	servers map[address.Host]*Server

	waiterMu     sync.Mutex
	waiters      map[int64]chan struct{}
	lastWaiterID int64

	done   chan struct{}
	closed int32
}

// New builds and starts monitoring a Topology from opts. At least one
// seed must be supplied via WithSeeds.
func New(opts ...Option) (*Topology, error) {
	cfg := &config{serverSelectionTimeout: DefaultServerSelectionTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	initial := NewTopologyDescription(cfg.kind, cfg.seeds)
	initial.SetName = cfg.replicaSet

	t := &Topology{
		cfg:       cfg,
		descGuard: lock.NewGuarded(initial),
		servers:   make(map[address.Host]*Server),
		waiters:   make(map[int64]chan struct{}),
		done:      make(chan struct{}),
	}

	for _, seed := range cfg.seeds {
		if err := t.addServer(seed); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

func (t *Topology) addServer(addr address.Host) error {
	srv, err := newServer(addr, t.cfg.dialOpts, t.cfg.monitorOpts)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.servers[addr] = srv
	t.mu.Unlock()

	updates, _, _ := srv.monitor.Subscribe()
	go t.watch(updates)
	return nil
}

func (t *Topology) watch(updates <-chan ServerDescription) {
	for sd := range updates {
		t.applyUpdate(sd)
	}
}

func (t *Topology) applyUpdate(sd ServerDescription) {
	old, err := t.descGuard.Get()
	if err != nil {
		return
	}
	next := old.Apply(sd)
	t.descGuard.Set(next)

	diff := DiffTopology(old, next)
	for _, addr := range diff.Added {
		t.addServer(addr)
	}
	for _, addr := range diff.Removed {
		t.mu.Lock()
		srv := t.servers[addr]
		delete(t.servers, addr)
		t.mu.Unlock()
		if srv != nil {
			srv.close()
		}
	}

	if sd.Type == Unknown {
		t.mu.Lock()
		srv := t.servers[sd.Addr]
		t.mu.Unlock()
		if srv != nil {
			srv.Drain()
		}
	}

	t.wakeWaiters()
}

func (t *Topology) wakeWaiters() {
	t.waiterMu.Lock()
	defer t.waiterMu.Unlock()
	for _, ch := range t.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Topology) awaitUpdate() (<-chan struct{}, int64) {
	t.waiterMu.Lock()
	defer t.waiterMu.Unlock()
	id := t.lastWaiterID
	t.lastWaiterID++
	ch := make(chan struct{}, 1)
	t.waiters[id] = ch
	return ch, id
}

func (t *Topology) removeWaiter(id int64) {
	t.waiterMu.Lock()
	delete(t.waiters, id)
	t.waiterMu.Unlock()
}

// Description returns the topology's current, already-folded
// TopologyDescription.
func (t *Topology) Description() TopologyDescription {
	desc, err := t.descGuard.Get()
	if err != nil {
		return TopologyDescription{}
	}
	return desc
}

// SelectedServer is a Server chosen by SelectServer, carrying the
// ServerDescription observed at selection time.
type SelectedServer struct {
	*Server
	Description ServerDescription
}

// SelectServer blocks until a server matching rp is available, the
// topology's selection timeout elapses, or ctx is done.
func (t *Topology) SelectServer(ctx context.Context, rp readpref.ReadPref) (*SelectedServer, error) {
	if atomic.LoadInt32(&t.closed) != 0 {
		return nil, ErrTopologyClosed
	}

	timer := time.NewTimer(t.cfg.serverSelectionTimeout)
	defer timer.Stop()

	updated, waiterID := t.awaitUpdate()
	defer t.removeWaiter(waiterID)

	for {
		candidates := Select(t.Description(), rp)
		if len(candidates) > 0 {
			chosen := candidates[0]
			t.mu.Lock()
			srv, ok := t.servers[chosen.Addr]
			t.mu.Unlock()
			if ok {
				return &SelectedServer{Server: srv, Description: chosen}, nil
			}
		}

		t.mu.Lock()
		for _, srv := range t.servers {
			srv.monitor.RequestImmediateCheck()
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updated:
		case <-timer.C:
			return nil, ErrServerSelectionTimeout
		case <-t.done:
			return nil, ErrTopologyClosed
		}
	}
}

// Close stops every per-server monitor and closes every connection
// pool.
func (t *Topology) Close() {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return
	}
	close(t.done)

	t.mu.Lock()
	servers := t.servers
	t.servers = nil
	t.mu.Unlock()

	for _, srv := range servers {
		srv.close()
	}
}
