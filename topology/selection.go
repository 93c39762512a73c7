// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"github.com/mongokit/driver/readpref"
)

// latencyWindow is added to the fastest candidate's RTT to build the
// Nearest mode's acceptable band, mirroring the driver specification's
// default local threshold.
const latencyWindow = 15_000_000 // 15ms, in nanoseconds

// Select narrows td's servers down to the subset suitable for rp. A
// Single topology yields its non-Unknown server and a Sharded one its
// mongos routers, with no mode or tag-set filtering; a replica set is
// narrowed by read-preference mode, then by tag sets, then (for
// Nearest) by the RTT window. Any other topology type yields nil.
func Select(td TopologyDescription, rp readpref.ReadPref) []ServerDescription {
	var candidates []ServerDescription

	switch td.Type {
	case TopologySingle:
		for _, sd := range td.Servers {
			if sd.Type != Unknown {
				candidates = append(candidates, sd)
			}
		}
		return candidates

	case TopologySharded:
		for _, sd := range td.Servers {
			if sd.Type == Mongos {
				candidates = append(candidates, sd)
			}
		}
		return candidates

	case TopologyReplicaSetWithPrimary, TopologyReplicaSetNoPrimary:
		candidates = selectReplicaSet(td, rp)

	default:
		return nil
	}

	candidates = readpref.FilterByTagSets(rp, candidates, func(sd ServerDescription) map[string]string { return sd.Tags })
	if rp.Mode == readpref.Nearest {
		candidates = nearestByRTT(candidates)
	}
	return candidates
}

func selectReplicaSet(td TopologyDescription, rp readpref.ReadPref) []ServerDescription {
	var primary *ServerDescription
	var secondaries []ServerDescription
	for _, sd := range td.Servers {
		switch sd.Type {
		case RSPrimary:
			s := sd
			primary = &s
		case RSSecondary:
			secondaries = append(secondaries, sd)
		}
	}

	switch rp.Mode {
	case readpref.Primary:
		if primary == nil {
			return nil
		}
		return []ServerDescription{*primary}

	case readpref.PrimaryPreferred:
		if primary != nil {
			return []ServerDescription{*primary}
		}
		return secondaries

	case readpref.Secondary:
		return secondaries

	case readpref.SecondaryPreferred:
		if len(secondaries) > 0 {
			return secondaries
		}
		if primary != nil {
			return []ServerDescription{*primary}
		}
		return nil

	case readpref.Nearest:
		all := append([]ServerDescription{}, secondaries...)
		if primary != nil {
			all = append(all, *primary)
		}
		return all

	default:
		return nil
	}
}

// nearestByRTT keeps only the servers within latencyWindow of the
// fastest candidate's AverageRTT, the tie-break SPEC_FULL adds for
// Nearest beyond the base spec's mode table.
func nearestByRTT(candidates []ServerDescription) []ServerDescription {
	if len(candidates) == 0 {
		return candidates
	}
	fastest := candidates[0].AverageRTT
	for _, sd := range candidates[1:] {
		if sd.AverageRTT < fastest {
			fastest = sd.AverageRTT
		}
	}
	var out []ServerDescription
	for _, sd := range candidates {
		if sd.AverageRTT-fastest <= latencyWindow {
			out = append(out, sd)
		}
	}
	return out
}
