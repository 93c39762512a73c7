// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import "errors"

// ErrCursorExhausted is returned by Next once a Cursor has no more
// documents to yield: its buffer is empty, its server-side cursor id is
// 0, or its configured limit has been reached.
var ErrCursorExhausted = errors.New("driver: cursor exhausted")
