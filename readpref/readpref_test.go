// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package readpref

import "testing"

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"primary":            Primary,
		"primaryPreferred":   PrimaryPreferred,
		"SECONDARY":          Secondary,
		"secondaryPreferred": SecondaryPreferred,
		"nearest":            Nearest,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Fatalf("expected error for unrecognized mode")
	}
}

func TestParseTagSetString(t *testing.T) {
	ts, err := ParseTagSetString("dc:east,rack:1")
	if err != nil {
		t.Fatalf("ParseTagSetString: %v", err)
	}
	if ts["dc"] != "east" || ts["rack"] != "1" {
		t.Fatalf("unexpected tag set: %+v", ts)
	}

	if _, err := ParseTagSetString("malformed"); err == nil {
		t.Fatalf("expected error for malformed tag pair")
	}

	empty, err := ParseTagSetString("")
	if err != nil || len(empty) != 0 {
		t.Fatalf("ParseTagSetString(\"\") = %+v, %v; want empty, nil", empty, err)
	}
}

type fakeServer struct {
	name string
	tags map[string]string
}

func TestFilterByTagSetsFirstMatchWins(t *testing.T) {
	servers := []fakeServer{
		{name: "a", tags: map[string]string{"dc": "east"}},
		{name: "b", tags: map[string]string{"dc": "west"}},
		{name: "c", tags: map[string]string{"dc": "west", "rack": "2"}},
	}
	rp := New(Secondary).WithTags(
		TagSet{"dc": "north"},
		TagSet{"dc": "west"},
	)
	matched := FilterByTagSets(rp, servers, func(s fakeServer) map[string]string { return s.tags })
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches from second tag set, got %d: %+v", len(matched), matched)
	}
}

func TestFilterByTagSetsNoTagsReturnsAll(t *testing.T) {
	servers := []fakeServer{{name: "a"}, {name: "b"}}
	rp := New(Nearest)
	matched := FilterByTagSets(rp, servers, func(s fakeServer) map[string]string { return s.tags })
	if len(matched) != 2 {
		t.Fatalf("expected all servers returned when no tag sets configured, got %d", len(matched))
	}
}

func TestFilterByTagSetsNoneMatch(t *testing.T) {
	servers := []fakeServer{{name: "a", tags: map[string]string{"dc": "east"}}}
	rp := New(Secondary).WithTags(TagSet{"dc": "west"})
	matched := FilterByTagSets(rp, servers, func(s fakeServer) map[string]string { return s.tags })
	if matched != nil {
		t.Fatalf("expected no matches, got %+v", matched)
	}
}
