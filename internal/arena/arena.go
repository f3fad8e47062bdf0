// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena stores values behind generation-checked integer handles.
//
// A handle packs a slot index and the slot's generation. Freeing a slot bumps
// its generation, so a handle kept after Remove no longer resolves even when
// the slot is reused by a later Insert.
package arena

import "sync"

// Handle is the packed integer form: generation in the high 32 bits,
// slot index plus one in the low 32 bits. Zero is never issued.
type Handle uint64

// Null is the zero handle.
const Null Handle = 0

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

func (h Handle) split() (index, gen uint32, ok bool) {
	low := uint32(h)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(h >> 32), true
}

// Index returns the slot index encoded in h.
func (h Handle) Index() uint32 {
	i, _, _ := h.split()
	return i
}

// Generation returns the generation encoded in h.
func (h Handle) Generation() uint32 {
	return uint32(h >> 32)
}

type slot[T any] struct {
	gen   uint32
	used  bool
	value T
}

// Arena is a typed slot map. Arena is safe for concurrent use.
type Arena[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
	count int
}

// New creates an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.used = true
	s.value = v
	a.count++
	return makeHandle(idx, s.gen)
}

// Get resolves h. It returns false for the null handle, a freed slot or a
// stale generation.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Remove frees h and returns the value it held. Removing an unknown or stale
// handle returns false and changes nothing.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}
	v := s.value
	var zero T
	s.value = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, h.Index())
	a.count--
	return v, true
}

// Len returns the number of live handles.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Each calls fn for every live handle in slot order. fn must not call back
// into the arena.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.slots {
		s := &a.slots[i]
		if s.used {
			fn(makeHandle(uint32(i), s.gen), s.value)
		}
	}
}

// lookup must be called with a.mu held.
func (a *Arena[T]) lookup(h Handle) *slot[T] {
	idx, gen, ok := h.split()
	if !ok || int(idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[idx]
	if !s.used || s.gen != gen {
		return nil
	}
	return s
}
