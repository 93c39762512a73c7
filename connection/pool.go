// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mongokit/driver/address"
)

// Pool hands out wire-protocol connections to a single server, bounding
// how many may be open at once and reusing idle ones across callers.
type Pool struct {
	addr address.Host
	opts []Option

	sem *semaphore.Weighted

	mu     sync.Mutex
	idle   []Conn
	closed bool
}

// NewPool builds a Pool that dials addr on demand, never exceeding the
// WithMaxPoolSize limit (default 100) concurrently checked-out
// connections.
func NewPool(addr address.Host, opts ...Option) (*Pool, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Pool{
		addr: addr,
		opts: opts,
		sem:  semaphore.NewWeighted(int64(cfg.maxPoolSize)),
	}, nil
}

// Get checks out a Conn, blocking on the pool's semaphore until
// capacity is available or ctx is done. The returned Conn must be
// returned via Put (to reuse it) or discarded by calling Close
// directly, in which case the semaphore slot is released by the
// pool only if Put is called; callers that Close a checked-out Conn
// without Put must instead call Pool.Discard.
func (p *Pool) Get(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	for len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()
		if c.Expired() {
			c.Close()
			p.mu.Lock()
			continue
		}
		return c, nil
	}
	p.mu.Unlock()

	c, err := Dial(ctx, p.addr, p.opts...)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return c, nil
}

// Put returns a Conn to the pool's idle list for reuse, or closes it and
// releases its semaphore slot if the pool is closed, the connection is
// no longer alive, or it has expired.
func (p *Pool) Put(c Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !c.Alive() || c.Expired() {
		p.sem.Release(1)
		c.Close()
		return
	}
	p.idle = append(p.idle, c)
	p.sem.Release(1)
}

// Discard closes c without returning it to the idle list, releasing its
// semaphore slot. Callers should use Discard instead of Put after a read
// or write error leaves c in an unknown state.
func (p *Pool) Discard(c Conn) {
	c.Close()
	p.sem.Release(1)
}

// Drain closes every idle connection, forcing subsequent Gets to dial
// fresh sockets. It is called after a server is marked Unknown, so that
// stale connections to a since-recovered or since-replaced server are
// not reused.
func (p *Pool) Drain() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
}

// Close drains the pool and marks it closed; subsequent Gets fail with
// ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
}
