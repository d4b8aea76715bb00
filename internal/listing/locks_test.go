// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestKeyedMutex_SerializesSameID(t *testing.T) {
	defer goleak.VerifyNone(t)

	k := newKeyedMutex()
	id := ulid.Make()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(id)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, k.size(), "entries are dropped once released")
}

func TestKeyedMutex_DifferentIDsIndependent(t *testing.T) {
	k := newKeyedMutex()
	a, b := ulid.Make(), ulid.Make()

	unlockA := k.Lock(a)
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock(b)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
	assert.Equal(t, 0, k.size())
}
