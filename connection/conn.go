// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connection dials and pools sockets that speak the MongoDB
// wire protocol. It hides net.Conn behind a small interface so that
// callers in topology and driver only ever see wiremessage.Message
// values going in and wiremessage.Reply values coming out.
package connection

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/mongokit/driver/address"
	"github.com/mongokit/driver/wiremessage"
)

var globalConnectionID uint64

func nextConnectionID() uint64 { return atomic.AddUint64(&globalConnectionID, 1) }

// Dialer makes network connections. It is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer is the Dialer used when no WithDialer option is given.
var DefaultDialer Dialer = &net.Dialer{}

// Conn reads and writes wire protocol messages over a single socket.
type Conn interface {
	WriteWireMessage(ctx context.Context, requestID int32, m wiremessage.Message) error
	ReadWireMessage(ctx context.Context) (wiremessage.Header, wiremessage.Reply, error)
	Close() error
	Alive() bool
	Expired() bool
	ID() string
}

type conn struct {
	id   string
	addr address.Host
	nc   net.Conn

	dead bool

	idleTimeout      time.Duration
	idleDeadline     time.Time
	lifetimeDeadline time.Time
	readTimeout      time.Duration
	writeTimeout     time.Duration

	sendCompressor wiremessage.Compressor
	compressors    map[wiremessage.CompressorID]wiremessage.Compressor
}

// Dial opens a new Conn to addr, applying opts (dial timeout, TLS,
// compressors, idle/lifetime limits).
func Dial(ctx context.Context, addr address.Host, opts ...Option) (Conn, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if cfg.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, cfg.connectTimeout)
		defer cancel()
	}

	nc, err := cfg.dialer.DialContext(dialCtx, addr.Network(), addr.String())
	if err != nil {
		return nil, Error{Wrapped: err, message: "failed to dial"}
	}

	if cfg.tlsConfig != nil {
		nc, err = configureTLS(dialCtx, nc, addr.String(), cfg.tlsConfig, cfg.ocspStapling)
		if err != nil {
			return nil, Error{Wrapped: err, message: "TLS handshake failed"}
		}
	}

	id := fmt.Sprintf("%s[-%d]", addr, nextConnectionID())

	var lifetimeDeadline time.Time
	if cfg.lifeTimeout > 0 {
		lifetimeDeadline = time.Now().Add(cfg.lifeTimeout)
	}

	var sendCompressor wiremessage.Compressor
	for _, c := range cfg.compressors {
		sendCompressor = c
		break
	}

	c := &conn{
		id:               id,
		addr:             addr,
		nc:               nc,
		idleTimeout:      cfg.idleTimeout,
		lifetimeDeadline: lifetimeDeadline,
		readTimeout:      cfg.readTimeout,
		writeTimeout:     cfg.writeTimeout,
		sendCompressor:   sendCompressor,
		compressors:      cfg.compressors,
	}
	c.bumpIdleDeadline()
	return c, nil
}

func (c *conn) WriteWireMessage(ctx context.Context, requestID int32, m wiremessage.Message) error {
	if c.dead {
		return Error{ConnectionID: c.id, message: "connection is dead"}
	}
	if err := c.setWriteDeadline(ctx); err != nil {
		return Error{ConnectionID: c.id, Wrapped: err, message: "failed to set write deadline"}
	}

	if err := wiremessage.Write(c.nc, requestID, m, c.sendCompressor); err != nil {
		c.Close()
		return Error{ConnectionID: c.id, Wrapped: err, message: "failed to write wire message"}
	}
	c.bumpIdleDeadline()
	return nil
}

func (c *conn) ReadWireMessage(ctx context.Context) (wiremessage.Header, wiremessage.Reply, error) {
	if c.dead {
		return wiremessage.Header{}, wiremessage.Reply{}, Error{ConnectionID: c.id, message: "connection is dead"}
	}
	if err := c.setReadDeadline(ctx); err != nil {
		return wiremessage.Header{}, wiremessage.Reply{}, Error{ConnectionID: c.id, Wrapped: err, message: "failed to set read deadline"}
	}

	header, reply, err := wiremessage.Read(c.nc, c.compressors)
	if err != nil {
		c.Close()
		return header, reply, Error{ConnectionID: c.id, Wrapped: err, message: "failed to read wire message"}
	}
	c.bumpIdleDeadline()
	return header, reply, nil
}

func (c *conn) setWriteDeadline(ctx context.Context) error {
	deadline := time.Time{}
	if c.writeTimeout != 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	return c.nc.SetWriteDeadline(deadline)
}

func (c *conn) setReadDeadline(ctx context.Context) error {
	deadline := time.Time{}
	if c.readTimeout != 0 {
		deadline = time.Now().Add(c.readTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	return c.nc.SetReadDeadline(deadline)
}

func (c *conn) bumpIdleDeadline() {
	if c.idleTimeout > 0 {
		c.idleDeadline = time.Now().Add(c.idleTimeout)
	}
}

func (c *conn) Alive() bool { return !c.dead }

func (c *conn) Expired() bool {
	now := time.Now()
	if !c.idleDeadline.IsZero() && now.After(c.idleDeadline) {
		return true
	}
	if !c.lifetimeDeadline.IsZero() && now.After(c.lifetimeDeadline) {
		return true
	}
	return c.dead
}

func (c *conn) Close() error {
	if c.dead {
		return nil
	}
	c.dead = true
	if err := c.nc.Close(); err != nil {
		return Error{ConnectionID: c.id, Wrapped: err, message: "failed to close socket"}
	}
	return nil
}

func (c *conn) ID() string { return c.id }
