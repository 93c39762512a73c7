// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package lock

import (
	"errors"
	"testing"

	"github.com/mongokit/driver/mongoerr"
)

func TestGuardedGetSet(t *testing.T) {
	g := NewGuarded(1)
	v, err := g.Get()
	if err != nil || v != 1 {
		t.Fatalf("Get() = %d, %v; want 1, nil", v, err)
	}

	if err := g.With(func(v int) int { return v + 1 }); err != nil {
		t.Fatalf("With: %v", err)
	}
	v, _ = g.Get()
	if v != 2 {
		t.Fatalf("Get() = %d, want 2", v)
	}
}

func TestGuardedPoisonsOnPanic(t *testing.T) {
	g := NewGuarded(1)

	err := g.With(func(v int) int { panic("boom") })
	if err == nil {
		t.Fatalf("expected With to recover the panic into an error")
	}
	var poison *mongoerr.PoisonLockError
	if !errors.As(err, &poison) {
		t.Fatalf("expected *PoisonLockError, got %T", err)
	}

	if _, err := g.Get(); err == nil {
		t.Fatalf("expected Get to report poisoning after a panicking With")
	}
	if err := g.With(func(v int) int { return v }); err == nil {
		t.Fatalf("expected With to refuse to run against a poisoned cell")
	}

	g.Set(42)
	v, err := g.Get()
	if err != nil || v != 42 {
		t.Fatalf("Get() after Set = %d, %v; want 42, nil", v, err)
	}
}
