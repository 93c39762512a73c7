// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"bytes"
	"testing"

	"github.com/mongokit/driver/wiremessage"
)

func TestSnappyRoundTrip(t *testing.T) {
	c := Snappy()
	if c.ID() != wiremessage.CompressorSnappy {
		t.Fatalf("ID() = %v, want CompressorSnappy", c.ID())
	}
	src := bytes.Repeat([]byte("mongodb wire protocol payload "), 20)
	compressed, err := c.Compress(nil, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	decompressed, err := c.Decompress(nil, compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(decompressed, src) {
		t.Fatalf("round trip mismatch")
	}
}

func TestZlibRoundTrip(t *testing.T) {
	c := Zlib(6)
	if c.ID() != wiremessage.CompressorZlib {
		t.Fatalf("ID() = %v, want CompressorZlib", c.ID())
	}
	src := bytes.Repeat([]byte("mongodb wire protocol payload "), 20)
	compressed, err := c.Compress(nil, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	decompressed, err := c.Decompress(nil, compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(decompressed, src) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressorByName(t *testing.T) {
	if _, ok := compressorByName("snappy"); !ok {
		t.Fatalf("expected snappy to resolve")
	}
	if _, ok := compressorByName("zlib"); !ok {
		t.Fatalf("expected zlib to resolve")
	}
	if _, ok := compressorByName("bogus"); ok {
		t.Fatalf("expected unrecognized compressor name to fail")
	}
}
