// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology implements server discovery and monitoring: per-server
// heartbeats, the topology state machine that folds heartbeat results
// into a TopologyDescription, and read-preference-driven server
// selection over that description.
package topology

import (
	"time"

	"github.com/mongokit/driver/address"
)

// ServerType classifies a single monitored server, mirroring the SDAM
// server types.
type ServerType int

const (
	Unknown ServerType = iota
	Standalone
	RSPrimary
	RSSecondary
	RSArbiter
	RSOther
	RSGhost
	Mongos
)

func (t ServerType) String() string {
	switch t {
	case Standalone:
		return "Standalone"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSOther:
		return "RSOther"
	case RSGhost:
		return "RSGhost"
	case Mongos:
		return "Mongos"
	default:
		return "Unknown"
	}
}

// TopologyType classifies the cluster as a whole.
type TopologyType int

const (
	TopologyUnknown TopologyType = iota
	TopologySingle
	TopologyReplicaSetNoPrimary
	TopologyReplicaSetWithPrimary
	TopologySharded
)

func (t TopologyType) String() string {
	switch t {
	case TopologySingle:
		return "Single"
	case TopologyReplicaSetNoPrimary:
		return "ReplicaSetNoPrimary"
	case TopologyReplicaSetWithPrimary:
		return "ReplicaSetWithPrimary"
	case TopologySharded:
		return "Sharded"
	default:
		return "Unknown"
	}
}

// ElectionID identifies a replica-set election, used to break ties
// between two servers that both claim to be primary: the higher
// (electionSetVersion, electionID) pair wins, and a stale primary is
// demoted to Unknown rather than trusted.
type ElectionID struct {
	SetVersion int64
	OID        string
}

// Less reports whether e is older than other. The zero ElectionID is
// always considered older than any set one.
func (e ElectionID) Less(other ElectionID) bool {
	if e.SetVersion != other.SetVersion {
		return e.SetVersion < other.SetVersion
	}
	return e.OID < other.OID
}

// ServerDescription is the result of a single heartbeat against one
// server.
type ServerDescription struct {
	Addr       address.Host
	Type       ServerType
	Err        error
	AverageRTT time.Duration

	Me         address.Host
	SetName    string
	SetVersion int64
	ElectionID ElectionID
	Primary    address.Host

	Hosts          []address.Host
	Passives       []address.Host
	Arbiters       []address.Host
	Tags           map[string]string
	MaxWireVersion int32

	LastWriteDate time.Time
}

// NewUnknownServerDescription builds the ServerDescription a server
// starts with, before its first successful heartbeat, or falls back to
// after a heartbeat failure.
func NewUnknownServerDescription(addr address.Host, err error) ServerDescription {
	return ServerDescription{Addr: addr, Type: Unknown, Err: err}
}

// TopologyDescription is the aggregate view of every monitored server,
// folded into a single TopologyType per the SDAM state machine.
type TopologyDescription struct {
	Type        TopologyType
	SetName     string
	MaxElection ElectionID
	Servers     map[address.Host]ServerDescription

	// seedCount is the number of hosts the topology was originally seeded
	// with, independent of how many servers have since been discovered or
	// removed; it decides whether an Unknown+Standalone probe collapses
	// the topology to Single or just removes that one host.
	seedCount int
}

// NewTopologyDescription builds the initial description for a topology
// seeded with the given hosts. kind should be TopologySingle for a
// direct connection or TopologyReplicaSetNoPrimary/TopologySharded
// otherwise; TopologyUnknown lets the first heartbeats decide.
func NewTopologyDescription(kind TopologyType, seeds []address.Host) TopologyDescription {
	servers := make(map[address.Host]ServerDescription, len(seeds))
	for _, s := range seeds {
		servers[s] = NewUnknownServerDescription(s, nil)
	}
	return TopologyDescription{Type: kind, Servers: servers, seedCount: len(seeds)}
}

// Apply folds a single server's new ServerDescription into td, running
// the SDAM state-machine transition for td.Type and returning the
// resulting TopologyDescription. It never mutates td.
func (td TopologyDescription) Apply(sd ServerDescription) TopologyDescription {
	next := td.clone()
	if _, tracked := next.Servers[sd.Addr]; !tracked {
		// A heartbeat arrived for a server this topology no longer
		// tracks (e.g. it was removed by an earlier isMaster); drop it.
		return next
	}
	next.Servers[sd.Addr] = sd

	switch next.Type {
	case TopologySingle:
		// A direct connection's type never changes with heartbeats.
	case TopologyUnknown:
		next.updateUnknown(sd)
	case TopologySharded:
		next.updateSharded(sd)
	case TopologyReplicaSetNoPrimary:
		next.updateReplicaSetNoPrimary(sd)
	case TopologyReplicaSetWithPrimary:
		next.updateReplicaSetWithPrimary(sd)
	}
	return next
}

func (td TopologyDescription) clone() TopologyDescription {
	servers := make(map[address.Host]ServerDescription, len(td.Servers))
	for k, v := range td.Servers {
		servers[k] = v
	}
	return TopologyDescription{Type: td.Type, SetName: td.SetName, MaxElection: td.MaxElection, Servers: servers, seedCount: td.seedCount}
}

func (td *TopologyDescription) updateUnknown(sd ServerDescription) {
	switch sd.Type {
	case Standalone:
		if td.seedCount == 1 {
			td.Type = TopologySingle
		} else {
			delete(td.Servers, sd.Addr)
		}
	case Mongos:
		td.Type = TopologySharded
	case RSPrimary:
		td.SetName = sd.SetName
		td.Type = TopologyReplicaSetWithPrimary
		td.updatePrimary(sd)
		td.addMissingHosts(sd)
	case RSSecondary, RSArbiter, RSOther:
		td.Type = TopologyReplicaSetNoPrimary
		if td.SetName == "" {
			td.SetName = sd.SetName
		}
		td.addMissingHosts(sd)
	}
}

func (td *TopologyDescription) updateSharded(sd ServerDescription) {
	if sd.Type != Mongos && sd.Type != Unknown {
		td.Servers[sd.Addr] = NewUnknownServerDescription(sd.Addr, sd.Err)
	}
}

func (td *TopologyDescription) updateReplicaSetNoPrimary(sd ServerDescription) {
	switch sd.Type {
	case Standalone, Mongos:
		delete(td.Servers, sd.Addr)
		return
	case RSPrimary:
		td.Type = TopologyReplicaSetWithPrimary
		td.updatePrimary(sd)
	case RSSecondary, RSArbiter, RSOther:
		if td.SetName == "" {
			td.SetName = sd.SetName
		} else if sd.SetName != "" && sd.SetName != td.SetName {
			delete(td.Servers, sd.Addr)
			return
		}
		if sd.Me != (address.Host{}) && sd.Me != sd.Addr {
			delete(td.Servers, sd.Addr)
			return
		}
	}
	td.addMissingHosts(sd)
	if !td.anyServerType(RSPrimary) {
		td.Type = TopologyReplicaSetNoPrimary
	}
}

func (td *TopologyDescription) updateReplicaSetWithPrimary(sd ServerDescription) {
	switch sd.Type {
	case Standalone, Mongos:
		delete(td.Servers, sd.Addr)
		td.demoteIfNoPrimaryLeft()
		return
	case RSPrimary:
		if sd.SetName != "" && sd.SetName != td.SetName {
			delete(td.Servers, sd.Addr)
			td.demoteIfNoPrimaryLeft()
			return
		}
		if td.MaxElection.Less(sd.ElectionID) || td.MaxElection == (ElectionID{}) {
			td.updatePrimary(sd)
		} else {
			// A stale primary: it believes it's primary but a fresher
			// election has already happened elsewhere. Demote it.
			td.Servers[sd.Addr] = NewUnknownServerDescription(sd.Addr, nil)
			td.demoteIfNoPrimaryLeft()
			return
		}
	case RSSecondary, RSArbiter, RSOther:
		if sd.SetName != "" && sd.SetName != td.SetName {
			delete(td.Servers, sd.Addr)
			td.demoteIfNoPrimaryLeft()
			return
		}
		if sd.Me != (address.Host{}) && sd.Me != sd.Addr {
			delete(td.Servers, sd.Addr)
			td.demoteIfNoPrimaryLeft()
			return
		}
	case Unknown:
		// falls through to demoteIfNoPrimaryLeft
	}
	td.addMissingHosts(sd)
	td.demoteIfNoPrimaryLeft()
}

// updatePrimary demotes any other server currently marked RSPrimary
// before installing sd as the one true primary, per the invariant that
// a ReplicaSetWithPrimary topology has at most one RSPrimary.
func (td *TopologyDescription) updatePrimary(sd ServerDescription) {
	for addr, other := range td.Servers {
		if addr != sd.Addr && other.Type == RSPrimary {
			td.Servers[addr] = NewUnknownServerDescription(addr, nil)
		}
	}
	td.Servers[sd.Addr] = sd
	if sd.ElectionID != (ElectionID{}) {
		td.MaxElection = sd.ElectionID
	}
}

func (td *TopologyDescription) demoteIfNoPrimaryLeft() {
	if !td.anyServerType(RSPrimary) {
		td.Type = TopologyReplicaSetNoPrimary
	}
}

func (td TopologyDescription) anyServerType(t ServerType) bool {
	for _, sd := range td.Servers {
		if sd.Type == t {
			return true
		}
	}
	return false
}

// addMissingHosts seeds a ServerDescription for every host sd reports
// that isn't already tracked, so the topology discovers the rest of the
// replica set from any one member's hello/isMaster response.
func (td *TopologyDescription) addMissingHosts(sd ServerDescription) {
	add := func(hosts []address.Host) {
		for _, h := range hosts {
			if _, ok := td.Servers[h]; !ok {
				td.Servers[h] = NewUnknownServerDescription(h, nil)
			}
		}
	}
	add(sd.Hosts)
	add(sd.Passives)
	add(sd.Arbiters)
}

// Diff summarizes which servers were added or removed between two
// TopologyDescriptions, driving Topology's bookkeeping of which
// per-server monitors to start or stop.
type Diff struct {
	Added   []address.Host
	Removed []address.Host
}

// DiffTopology computes the Diff between an old and updated
// TopologyDescription's server sets.
func DiffTopology(old, updated TopologyDescription) Diff {
	var d Diff
	for addr := range updated.Servers {
		if _, ok := old.Servers[addr]; !ok {
			d.Added = append(d.Added, addr)
		}
	}
	for addr := range old.Servers {
		if _, ok := updated.Servers[addr]; !ok {
			d.Removed = append(d.Removed, addr)
		}
	}
	return d
}
