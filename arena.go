// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbhash

import "math"

const (
	// minArenaSlots is the size of the first allocation made by an arena,
	// including the reserved slot 0.
	minArenaSlots = 8
	// maxArenaSlots bounds an arena so that every slot is addressable by a
	// uint32 index and its length fits in an int on 32-bit platforms.
	maxArenaSlots = math.MaxInt32
)

type color uint8

// The zero color is black so that the zero Node, including the nil sentinel
// at index 0 of the node arena, is black.
const (
	black color = iota
	red
)

func (c color) String() string {
	if c == red {
		return "red"
	}
	return "black"
}

// Node is a red-black tree node holding one distinct key and the chain of
// entries stored under it. Links to other nodes are indices into the Table's
// node arena; index 0 is the nil sentinel.
type Node struct {
	key                 uint32
	parent, left, right uint32
	color               color
	chain               chain
}

// link is the free-list link for a released Node.
func (n *Node) link() *uint32 {
	return &n.right
}

// Entry holds a single value in a duplicate chain.
type Entry[V any] struct {
	value V
	next  uint32
}

// link is the free-list link for a released Entry.
func (e *Entry[V]) link() *uint32 {
	return &e.next
}

type linker[T any] interface {
	*T
	link() *uint32
}

// arena is a slab of T addressed by stable uint32 indices. Index 0 is never
// handed out, which lets 0 serve as the nil link. Released slots are zeroed
// and threaded onto a free list through the link field.
//
// Slots never move while a Table operation is linking or unlinking nodes:
// growth only happens in reserve, which callers run before they mutate any
// link.
type arena[T any, P linker[T]] struct {
	slots []T
	// free is the head of the free list, or 0.
	free uint32
	// hwm is the lowest index that has never been handed out.
	hwm uint32
	// used is the number of slots currently handed out.
	used int
}

// available returns the number of slots that can be handed out by get
// without growing.
func (a *arena[T, P]) available() int {
	if len(a.slots) == 0 {
		return 0
	}
	return len(a.slots) - 1 - a.used
}

// reserve ensures that n more slots can be handed out without growing. It
// returns false, leaving the arena unchanged, if the slots could not be
// obtained from alloc.
func (a *arena[T, P]) reserve(n int, alloc func(int) []T, release func([]T)) bool {
	if a.available() >= n {
		return true
	}

	newLen := max(2*len(a.slots), minArenaSlots)
	for newLen-1-a.used < n {
		newLen *= 2
	}
	if newLen > maxArenaSlots {
		if len(a.slots) == maxArenaSlots {
			return false
		}
		newLen = maxArenaSlots
		if newLen-1-a.used < n {
			return false
		}
	}

	s := alloc(newLen)
	if len(s) < newLen {
		return false
	}
	s = s[:newLen]
	copy(s, a.slots)
	if a.slots != nil {
		release(a.slots)
	}
	a.slots = s
	if a.hwm == 0 {
		a.hwm = 1
	}
	return true
}

// get hands out a zeroed slot. The caller must have reserved it.
func (a *arena[T, P]) get() uint32 {
	var i uint32
	if a.free != 0 {
		i = a.free
		link := P(&a.slots[i]).link()
		a.free = *link
		*link = 0
	} else {
		if int(a.hwm) >= len(a.slots) {
			panic("rbhash: arena slot handed out without a reservation")
		}
		i = a.hwm
		a.hwm++
	}
	a.used++
	return i
}

// put zeroes slot i and returns it to the free list.
func (a *arena[T, P]) put(i uint32) {
	var zero T
	a.slots[i] = zero
	*P(&a.slots[i]).link() = a.free
	a.free = i
	a.used--
}

// at returns a pointer to slot i. The pointer is invalidated by the next
// successful reserve that grows the arena.
func (a *arena[T, P]) at(i uint32) *T {
	return &a.slots[i]
}

// reset releases every slot while keeping the backing memory.
func (a *arena[T, P]) reset() {
	clear(a.slots)
	a.free = 0
	a.used = 0
	if len(a.slots) > 0 {
		a.hwm = 1
	} else {
		a.hwm = 0
	}
}

// close hands the backing memory to release and leaves the arena empty.
func (a *arena[T, P]) close(release func([]T)) {
	if a.slots != nil {
		release(a.slots)
	}
	*a = arena[T, P]{}
}

// capacity returns the number of addressable slots, excluding slot 0.
func (a *arena[T, P]) capacity() int {
	if len(a.slots) == 0 {
		return 0
	}
	return len(a.slots) - 1
}
