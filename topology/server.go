// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"

	"github.com/mongokit/driver/address"
	"github.com/mongokit/driver/connection"
)

// Server pairs a running Monitor with the connection Pool used to
// actually dispatch operations to that server.
type Server struct {
	Addr    address.Host
	monitor *Monitor
	pool    *connection.Pool
}

func newServer(addr address.Host, dialOpts []connection.Option, monitorOpts []MonitorOption) (*Server, error) {
	pool, err := connection.NewPool(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	opts := append([]MonitorOption{WithMonitorDialOptions(dialOpts...), WithPoolDrainer(pool.Drain)}, monitorOpts...)
	return &Server{
		Addr:    addr,
		monitor: StartMonitor(addr, opts...),
		pool:    pool,
	}, nil
}

// Connection checks out a pooled connection.Conn to this server.
func (s *Server) Connection(ctx context.Context) (connection.Conn, error) {
	return s.pool.Get(ctx)
}

// Release returns a connection.Conn obtained from Connection back to
// the pool for reuse.
func (s *Server) Release(c connection.Conn) {
	s.pool.Put(c)
}

// Discard closes a connection.Conn obtained from Connection instead of
// returning it to the pool, for use after a read or write error.
func (s *Server) Discard(c connection.Conn) {
	s.pool.Discard(c)
}

// Drain closes every idle connection in this server's pool, used after
// the server transitions to Unknown so stale sockets aren't reused.
func (s *Server) Drain() {
	s.pool.Drain()
}

func (s *Server) close() {
	s.monitor.Stop()
	s.pool.Close()
}
