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

// Package listtable is the classic chained hash table, one singly linked
// list per bucket with new entries pushed at the head. It is the baseline the
// red-black tree buckets of rbhash are measured against.
package listtable

// node is one entry. Entries for the same key are not grouped.
type node[V any] struct {
	key   uint32
	value V
	next  *node[V]
}

// Table is a fixed-size chained hash table with 1<<bits buckets. A Table is
// NOT goroutine-safe.
type Table[V any] struct {
	hash  func(key uint32, bits uint) uint32
	bits  uint
	mask  uint32
	heads []*node[V]
	used  int
}

// New returns a table with 1<<bits buckets that routes keys with hash. bits
// must be at most 31.
func New[V any](bits uint, hash func(key uint32, bits uint) uint32) *Table[V] {
	if bits > 31 {
		panic("listtable: bits out of range")
	}
	return &Table[V]{
		hash:  hash,
		bits:  bits,
		mask:  uint32(1)<<bits - 1,
		heads: make([]*node[V], 1<<bits),
	}
}

func (t *Table[V]) bucket(key uint32) **node[V] {
	return &t.heads[t.hash(key, t.bits)&t.mask]
}

// Add inserts value under key at the head of its bucket.
func (t *Table[V]) Add(key uint32, value V) {
	head := t.bucket(key)
	*head = &node[V]{key: key, value: value, next: *head}
	t.used++
}

// Get returns the most recently added value for key.
func (t *Table[V]) Get(key uint32) (value V, ok bool) {
	for n := *t.bucket(key); n != nil; n = n.next {
		if n.key == key {
			return n.value, true
		}
	}
	return value, false
}

// Delete removes the most recently added value for key and reports whether
// one was found.
func (t *Table[V]) Delete(key uint32) bool {
	for p := t.bucket(key); *p != nil; p = &(*p).next {
		if (*p).key == key {
			*p = (*p).next
			t.used--
			return true
		}
	}
	return false
}

// Possible calls yield for every entry in the bucket key hashes to. yield
// may Delete the entry it was just handed.
func (t *Table[V]) Possible(key uint32, yield func(key uint32, value V) bool) {
	for n := *t.bucket(key); n != nil; {
		next := n.next
		if !yield(n.key, n.value) {
			return
		}
		n = next
	}
}

// All calls yield for every entry, bucket by bucket. yield may Delete the
// entry it was just handed.
func (t *Table[V]) All(yield func(key uint32, value V) bool) {
	for i := range t.heads {
		for n := t.heads[i]; n != nil; {
			next := n.next
			if !yield(n.key, n.value) {
				return
			}
			n = next
		}
	}
}

// RemoveFunc unlinks every entry for which pred returns true and returns the
// number removed.
func (t *Table[V]) RemoveFunc(pred func(key uint32, value V) bool) int {
	var removed int
	for i := range t.heads {
		for p := &t.heads[i]; *p != nil; {
			if n := *p; pred(n.key, n.value) {
				*p = n.next
				removed++
			} else {
				p = &n.next
			}
		}
	}
	t.used -= removed
	return removed
}

// Len returns the number of entries.
func (t *Table[V]) Len() int {
	return t.used
}

// Buckets returns the number of buckets.
func (t *Table[V]) Buckets() int {
	return len(t.heads)
}

// MaxChain returns the length of the longest bucket list.
func (t *Table[V]) MaxChain() int {
	var longest int
	for _, n := range t.heads {
		var l int
		for ; n != nil; n = n.next {
			l++
		}
		longest = max(longest, l)
	}
	return longest
}

// Clear removes every entry.
func (t *Table[V]) Clear() {
	clear(t.heads)
	t.used = 0
}
