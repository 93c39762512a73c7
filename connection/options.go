// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"crypto/tls"
	"time"

	"github.com/mongokit/driver/wiremessage"
)

type config struct {
	dialer       Dialer
	tlsConfig    *tls.Config
	ocspStapling bool

	connectTimeout time.Duration
	idleTimeout    time.Duration
	lifeTimeout    time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	compressors map[wiremessage.CompressorID]wiremessage.Compressor

	maxPoolSize uint64
	minPoolSize uint64
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		dialer:      DefaultDialer,
		compressors: map[wiremessage.CompressorID]wiremessage.Compressor{},
		maxPoolSize: 100,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Option configures a Conn or Pool.
type Option func(*config) error

// WithDialer sets the Dialer used to establish the raw network
// connection. The zero value leaves DefaultDialer in place.
func WithDialer(d Dialer) Option {
	return func(c *config) error { c.dialer = d; return nil }
}

// WithTLSConfig enables TLS for the dial, cloning cfg per connection the
// way crypto/tls expects.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) error { c.tlsConfig = cfg; return nil }
}

// WithOCSPStapling requires the server's certificate to carry a valid
// OCSP staple during the TLS handshake. It has no effect unless
// WithTLSConfig is also set.
func WithOCSPStapling(enabled bool) Option {
	return func(c *config) error { c.ocspStapling = enabled; return nil }
}

// WithConnectTimeout bounds how long dialing may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) error { c.connectTimeout = d; return nil }
}

// WithIdleTimeout closes a pooled connection that has sat idle longer
// than d.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error { c.idleTimeout = d; return nil }
}

// WithLifeTimeout closes a pooled connection once it has existed longer
// than d, regardless of activity.
func WithLifeTimeout(d time.Duration) Option {
	return func(c *config) error { c.lifeTimeout = d; return nil }
}

// WithReadTimeout bounds a single ReadWireMessage call.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) error { c.readTimeout = d; return nil }
}

// WithWriteTimeout bounds a single WriteWireMessage call.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) error { c.writeTimeout = d; return nil }
}

// WithCompressors registers the named compressors ("snappy", "zlib") as
// acceptable for both compressing outgoing requests and decompressing
// OP_COMPRESSED replies. Outgoing requests are compressed with one of
// the registered compressors; the set is held in a map, so when more
// than one is registered, which one is used is not defined by the
// order of names.
func WithCompressors(names ...string) Option {
	return func(c *config) error {
		for _, name := range names {
			comp, ok := compressorByName(name)
			if !ok {
				continue
			}
			c.compressors[comp.ID()] = comp
		}
		return nil
	}
}

// WithMaxPoolSize bounds how many connections a Pool will open
// concurrently.
func WithMaxPoolSize(n uint64) Option {
	return func(c *config) error { c.maxPoolSize = n; return nil }
}

// WithMinPoolSize records a minimum pool size in the configuration.
// Pool does not read it: it neither pre-dials nor keeps idle
// connections warm.
func WithMinPoolSize(n uint64) Option {
	return func(c *config) error { c.minPoolSize = n; return nil }
}
