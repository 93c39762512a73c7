// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package objectid implements generation and parsing of the 12-byte object
// identifiers used by the document format's 0x07 type.
package objectid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte BSON object identifier: 4 bytes of seconds since
// the epoch, 3 bytes of host fingerprint, 2 bytes of process id, and 3
// bytes of a per-process monotonic counter.
type ObjectID [12]byte

var processUnique = readProcessUnique()
var objectIDCounter = readRandomUint32()

// readProcessUnique derives the 3-byte host fingerprint and 2-byte pid
// portion of generated object ids, stable for the lifetime of the process.
func readProcessUnique() [5]byte {
	var b [5]byte

	hostname, err := os.Hostname()
	if err != nil {
		_, _ = rand.Read(b[:3])
	} else {
		h := fnv32a(hostname)
		b[0] = byte(h >> 16)
		b[1] = byte(h >> 8)
		b[2] = byte(h)
	}

	pid := os.Getpid()
	b[3] = byte(pid >> 8)
	b[4] = byte(pid)

	return b
}

func fnv32a(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

func readRandomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// New generates a new ObjectID using the current time, this process's
// fingerprint, and the shared monotonic counter.
func New() ObjectID {
	return NewWithTime(time.Now())
}

// NewWithTime generates an ObjectID with the timestamp component set to t,
// which is useful for constructing ids for range queries against a known
// window of time.
func NewWithTime(t time.Time) ObjectID {
	var id ObjectID

	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:9], processUnique[:])

	i := atomic.AddUint32(&objectIDCounter, 1)
	id[9] = byte(i >> 16)
	id[10] = byte(i >> 8)
	id[11] = byte(i)

	return id
}

// FromBytes validates and wraps a 12-byte slice as an ObjectID.
func FromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != 12 {
		return id, fmt.Errorf("objectid: byte slice of length %d, expected 12", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FromHex parses the 24-character hex representation of an ObjectID.
func FromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("objectid: hex string of length %d, expected 24", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("objectid: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// IsZero reports whether id is the zero-value ObjectID.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// Timestamp returns the creation time encoded in id's first four bytes.
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// Hex returns the 24-character lowercase hex representation of id.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ObjectID) String() string {
	return fmt.Sprintf("ObjectID(%q)", id.Hex())
}
