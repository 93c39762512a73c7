// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import "errors"

// ErrMonitorStopped is returned by Subscribe after the Monitor has been
// stopped.
var ErrMonitorStopped = errors.New("topology: monitor has been stopped")

// ErrEmptyIsMasterReply is reported as a ServerDescription's Err when a
// heartbeat reply carries zero documents.
var ErrEmptyIsMasterReply = errors.New("topology: isMaster reply carried no documents")

// ErrTopologyClosed is returned by SelectServer once the Topology has
// been closed.
var ErrTopologyClosed = errors.New("topology: is closed")

// ErrServerSelectionTimeout is returned by SelectServer when no suitable
// server was found before the selection timeout elapsed.
var ErrServerSelectionTimeout = errors.New("topology: server selection timed out")
