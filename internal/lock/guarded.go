// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package lock provides a reader/writer-guarded cell that poisons itself
// if a writer panics while holding the lock, rather than leaving the
// protected value in a state callers can't detect as broken. This plays
// the role the source's Mutex poisoning plays for ServerDescription and
// TopologyDescription: both are mutated from exactly one critical
// section (a monitor's update, or the topology's applyUpdate), and a
// panic there should not let a later reader silently observe half
// applied state.
package lock

import (
	"sync"

	"github.com/mongokit/driver/mongoerr"
)

// Guarded holds a value of type T behind a sync.RWMutex, poisoning
// itself if With panics while holding the write lock.
type Guarded[T any] struct {
	mu       sync.RWMutex
	val      T
	poisoned bool
	panicVal interface{}
}

// NewGuarded constructs a Guarded cell holding the given initial value.
func NewGuarded[T any](initial T) *Guarded[T] {
	return &Guarded[T]{val: initial}
}

// Get returns a copy of the current value, or a *mongoerr.PoisonLockError
// if the cell has been poisoned.
func (g *Guarded[T]) Get() (T, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.poisoned {
		var zero T
		return zero, &mongoerr.PoisonLockError{Panic: g.panicVal}
	}
	return g.val, nil
}

// MustGet returns the current value, panicking if the cell is poisoned.
// It is meant for call sites that have already established, by
// construction, that the cell cannot be poisoned (for example,
// immediately after NewGuarded).
func (g *Guarded[T]) MustGet() T {
	v, err := g.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// With runs fn against the current value under the write lock and
// stores its result as the new value. If fn panics, the cell is marked
// poisoned and the panic is recovered into a *mongoerr.PoisonLockError
// returned to the caller; the mutex is always released.
func (g *Guarded[T]) With(fn func(T) T) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.poisoned {
		return &mongoerr.PoisonLockError{Panic: g.panicVal}
	}

	defer func() {
		if r := recover(); r != nil {
			g.poisoned = true
			g.panicVal = r
			err = &mongoerr.PoisonLockError{Panic: r}
		}
	}()

	g.val = fn(g.val)
	return nil
}

// Set replaces the current value outright and clears any prior
// poisoning: an explicit recovery action for a caller that has decided
// to re-establish the invariant a previous panic broke.
func (g *Guarded[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.val = v
	g.poisoned = false
	g.panicVal = nil
}
