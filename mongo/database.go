// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

// Database is a handle to a single database reached through its
// Client's topology.
type Database struct {
	client *Client
	name   string
}

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Collection returns a handle to the named collection within d.
func (d *Database) Collection(name string) *Collection {
	return &Collection{
		db:        d,
		name:      name,
		namespace: d.name + "." + name,
	}
}
