// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// keyedMutex serializes work per property id within this process.
// Entries are dropped once no goroutine holds or waits on them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[ulid.ULID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[ulid.ULID]*keyedEntry)}
}

// Lock blocks until id is free and returns the matching unlock function.
func (k *keyedMutex) Lock(id ulid.ULID) func() {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &keyedEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}

// size returns the number of tracked ids.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
