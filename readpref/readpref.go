// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package readpref implements the five read-preference modes and
// tag-set matching used to narrow server selection to a subset of a
// replica set's members.
package readpref

import (
	"fmt"
	"strings"
)

// Mode selects which kind of replica-set member an operation may read
// from.
type Mode int

const (
	Primary Mode = iota
	PrimaryPreferred
	Secondary
	SecondaryPreferred
	Nearest
)

func (m Mode) String() string {
	switch m {
	case Primary:
		return "primary"
	case PrimaryPreferred:
		return "primaryPreferred"
	case Secondary:
		return "secondary"
	case SecondaryPreferred:
		return "secondaryPreferred"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses one of the five mode string literals.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "primary":
		return Primary, nil
	case "primarypreferred":
		return PrimaryPreferred, nil
	case "secondary":
		return Secondary, nil
	case "secondarypreferred":
		return SecondaryPreferred, nil
	case "nearest":
		return Nearest, nil
	default:
		return Primary, fmt.Errorf("readpref: unrecognized mode %q", s)
	}
}

// TagSet maps each tag key to its required value. It is a Go map and
// keeps no key order. A server
// matches a tag set if every (key, value) pair in the set appears in the
// server's own tag map.
type TagSet map[string]string

// Match reports whether every pair in ts is present in serverTags.
func (ts TagSet) Match(serverTags map[string]string) bool {
	for k, v := range ts {
		if serverTags[k] != v {
			return false
		}
	}
	return true
}

// ReadPref pairs a Mode with an ordered list of tag sets to narrow
// candidate servers further. Tag sets are tried in order; the first one
// with at least one matching server wins.
type ReadPref struct {
	Mode    Mode
	TagSets []TagSet
}

// New builds a ReadPref with no tag sets.
func New(mode Mode) ReadPref { return ReadPref{Mode: mode} }

// WithTags returns a copy of rp with tagSets appended to its tag-set
// list.
func (rp ReadPref) WithTags(tagSets ...TagSet) ReadPref {
	out := rp
	out.TagSets = append(append([]TagSet{}, rp.TagSets...), tagSets...)
	return out
}

// ParseTagSetString parses one readPreferenceTags option value, a
// comma-separated list of "key:value" pairs, into a single TagSet.
func ParseTagSetString(s string) (TagSet, error) {
	ts := TagSet{}
	if s == "" {
		return ts, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("readpref: malformed tag pair %q", pair)
		}
		ts[kv[0]] = kv[1]
	}
	return ts, nil
}

// FilterByTagSets partitions candidates by trying each tag set in order
// against tagsOf, returning the first non-empty match. If rp has no tag
// sets, or candidates is empty, candidates is returned unchanged.
func FilterByTagSets[T any](rp ReadPref, candidates []T, tagsOf func(T) map[string]string) []T {
	if len(rp.TagSets) == 0 || len(candidates) == 0 {
		return candidates
	}
	for _, ts := range rp.TagSets {
		var matched []T
		for _, c := range candidates {
			if ts.Match(tagsOf(c)) {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return nil
}
