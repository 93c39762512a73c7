// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/golang/snappy"
	"github.com/mongokit/driver/wiremessage"
)

// snappyCompressor implements wiremessage.Compressor using Google's
// Snappy codec, the wire protocol's default compressor.
type snappyCompressor struct{}

func (snappyCompressor) ID() wiremessage.CompressorID { return wiremessage.CompressorSnappy }

func (snappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst, src), nil
}

func (snappyCompressor) Decompress(dst, src []byte) ([]byte, error) {
	decoded, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, err
	}
	return append(dst, decoded...), nil
}

// zlibCompressor implements wiremessage.Compressor using
// klauspost/compress's zlib, a drop-in replacement for the standard
// library's compress/zlib tuned for throughput.
type zlibCompressor struct {
	level int
}

func (zlibCompressor) ID() wiremessage.CompressorID { return wiremessage.CompressorZlib }

func (c zlibCompressor) Compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := c.level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append(dst, buf.Bytes()...), nil
}

func (zlibCompressor) Decompress(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return append(dst, decoded...), nil
}

// Snappy returns the wiremessage.Compressor backed by golang/snappy.
func Snappy() wiremessage.Compressor { return snappyCompressor{} }

// Zlib returns the wiremessage.Compressor backed by
// klauspost/compress/zlib, optionally at a given compression level
// (1-9, or 0 for the library default).
func Zlib(level int) wiremessage.Compressor { return zlibCompressor{level: level} }

// compressorByName resolves the wire protocol's compressor name
// ("snappy", "zlib") to its Compressor implementation, for use with the
// WithCompressors dial option.
func compressorByName(name string) (wiremessage.Compressor, bool) {
	switch name {
	case "snappy":
		return Snappy(), true
	case "zlib":
		return Zlib(0), true
	default:
		return nil, false
	}
}
