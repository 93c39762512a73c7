// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver implements the cursor engine: the stateful iterator
// that issues an initial query or command-cursor request, buffers the
// current batch, fetches subsequent batches via getMore, and arranges
// for server-side cursor release.
package driver

import "sync/atomic"

var nextRequestID int32

// NextRequestID returns the next value of the process-wide request-id
// counter used by the cursor engine and the mongo package's operations;
// after int32 max it wraps to the most negative int32. Topology Monitors
// do not use it: their probes carry request id 1.
func NextRequestID() int32 {
	return atomic.AddInt32(&nextRequestID, 1)
}
