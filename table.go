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

// Package rbhash is a statically sized hash table whose buckets are
// red-black trees rather than linked lists.
//
// # Buckets
//
// A classic chained hash table degrades to a linear scan of one bucket when
// keys collide, whether through a skewed key distribution or deliberately.
// rbhash keeps the fixed bucket array and the multiplicative hash of the
// Linux kernel's hashtable.h, but each bucket holds a red-black tree ordered
// by key, so a lookup in a bucket of n keys costs O(log n) no matter how the
// keys were chosen.
//
// A tree holds exactly one node per distinct key. Values inserted under a key
// that is already present are appended to that node's duplicate chain, a
// FIFO list, so the table is a multi-map and duplicate inserts never
// restructure the tree:
//
//	bucket[i]             (red-black tree, keyed by uint32)
//	    |
//	   [17]---chain: 170 -> 171 -> 172
//	   /  \
//	 [3]  [42]---chain: 420
//
// # Memory
//
// Nodes and entries live in two per-table arenas and link to each other by
// uint32 index, with index 0 standing in for nil. The arenas grow by doubling
// through an Allocator, which may decline. Insert reserves everything it
// needs before touching a link, so a declined allocation surfaces as
// ErrOutOfMemory with the table unchanged.
//
// The number of buckets is fixed when the Table is constructed. There is no
// rehashing.
package rbhash

import (
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"
)

const debug = false

// Table is a fixed-size hash table from uint32 keys to one or more values per
// key. Buckets are selected by a HashFunc (Index by default); each bucket is
// a red-black tree with one node per distinct key, and each node keeps the
// values inserted under its key in insertion order.
//
// A Table is NOT goroutine-safe. Callers sharing a Table across goroutines
// must serialize every mutation, and every iteration that may overlap a
// mutation, with their own lock.
type Table[V any] struct {
	hash      HashFunc
	allocator Allocator[V]
	logger    *slog.Logger

	bits    uint
	mask    uint32
	buckets []bucket[V]
	// occupied holds the index of every bucket with a non-empty tree.
	occupied *roaring.Bitmap

	nodes   arena[Node, *Node]
	entries entries[V]

	// The number of distinct keys and entries across all buckets.
	keys int
	used int
}

// New constructs a Table with 1<<bits buckets. bits must be in [1, MaxBits].
func New[V any](bits uint, options ...option[V]) (*Table[V], error) {
	if bits == 0 || bits > MaxBits {
		return nil, fmt.Errorf("%w: bits=%d must be in [1, %d]", ErrInvalidArgument, bits, MaxBits)
	}

	t := &Table[V]{
		hash:      Index,
		allocator: defaultAllocator[V]{},
		bits:      bits,
		mask:      uint32(1)<<bits - 1,
		buckets:   make([]bucket[V], 1<<bits),
		occupied:  roaring.New(),
	}

	for _, op := range options {
		op.apply(t)
	}

	if t.hash == nil {
		return nil, fmt.Errorf("%w: nil hash function", ErrInvalidArgument)
	}
	if t.allocator == nil {
		return nil, fmt.Errorf("%w: nil allocator", ErrInvalidArgument)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	return t, nil
}

// Close releases the node and entry arenas back to the configured allocator.
// It is unnecessary to close a table using the default allocator. It is
// invalid to use a Table after it has been closed, though Close itself is
// idempotent.
func (t *Table[V]) Close() {
	if t.allocator == nil {
		return
	}
	t.logger.Debug("rbhash: closing table",
		"keys", t.keys, "entries", t.used,
		"node_capacity", t.nodes.capacity(), "entry_capacity", t.entries.capacity())

	t.nodes.close(t.allocator.FreeNodes)
	t.entries.close(t.allocator.FreeEntries)
	t.buckets = nil
	t.occupied.Clear()
	t.keys, t.used = 0, 0
	t.allocator = nil
}

// Insert adds value under key. If key is already present the value is
// appended to the key's duplicate chain. Insert fails with ErrOutOfMemory,
// leaving the table unchanged, if the allocator declines to grow an arena.
func (t *Table[V]) Insert(key uint32, value V) error {
	return t.insert(key, value, false)
}

// InsertUnique adds value under key, failing with ErrExists if key is
// already present.
func (t *Table[V]) InsertUnique(key uint32, value V) error {
	return t.insert(key, value, true)
}

func (t *Table[V]) insert(key uint32, value V, unique bool) error {
	i := t.bucketIndex(key)
	b := &t.buckets[i]
	keys := b.keys
	if err := b.insert(t, key, value, unique); err != nil {
		return err
	}
	t.keys += b.keys - keys
	t.used++
	t.occupied.Add(i)
	t.checkInvariants(i)
	return nil
}

// Remove removes the oldest value under key matching sel and returns it. It
// returns ErrNotFound if key is absent or none of its values match. When the
// last value for a key is removed the key's tree node is deleted.
func (t *Table[V]) Remove(key uint32, sel Selector[V]) (V, error) {
	if sel == nil {
		var zero V
		return zero, fmt.Errorf("%w: nil selector", ErrInvalidArgument)
	}
	i := t.bucketIndex(key)
	b := &t.buckets[i]
	keys := b.keys
	value, err := b.remove(t, key, sel)
	if err != nil {
		return value, err
	}
	t.keys += b.keys - keys
	t.used--
	if b.root == 0 {
		t.occupied.Remove(i)
	}
	t.checkInvariants(i)
	return value, nil
}

// RemoveFunc removes every entry for which pred returns true and returns the
// number of entries removed. pred must not modify the table.
func (t *Table[V]) RemoveFunc(pred func(key uint32, value V) bool) int {
	var removed int
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.root == 0 {
			continue
		}
		keys := b.keys
		n := b.removeFunc(t, pred)
		if n == 0 {
			continue
		}
		removed += n
		t.keys += b.keys - keys
		t.used -= n
		if b.root == 0 {
			t.occupied.Remove(uint32(i))
		}
		t.checkInvariants(uint32(i))
	}
	return removed
}

// View is a read-only view of the values stored under one key, in insertion
// order. A View is invalidated by any mutation of its Table.
type View[V any] struct {
	t    *Table[V]
	head uint32
	n    int
}

// Len returns the number of values in the view.
func (v View[V]) Len() int {
	return v.n
}

// All calls yield sequentially for each value in the view. If yield returns
// false, iteration stops.
func (v View[V]) All(yield func(value V) bool) {
	for e := v.head; e != 0; {
		en := v.t.entries.at(e)
		if !yield(en.value) {
			return
		}
		e = en.next
	}
}

// First returns the oldest value in the view, or the zero value for an empty
// view.
func (v View[V]) First() (value V) {
	if v.head != 0 {
		value = v.t.entries.at(v.head).value
	}
	return value
}

// Values returns the values in the view as a new slice.
func (v View[V]) Values() []V {
	values := make([]V, 0, v.n)
	v.All(func(value V) bool {
		values = append(values, value)
		return true
	})
	return values
}

// FindAll returns a view of the values stored under key, or ErrNotFound if
// key is absent.
func (t *Table[V]) FindAll(key uint32) (View[V], error) {
	i := t.buckets[t.bucketIndex(key)].find(t, key)
	if i == 0 {
		return View[V]{}, ErrNotFound
	}
	c := &t.nodes.at(i).chain
	return View[V]{t: t, head: c.head, n: int(c.len)}, nil
}

// Get returns the oldest value stored under key, with ok=false if key is
// absent.
func (t *Table[V]) Get(key uint32) (value V, ok bool) {
	i := t.buckets[t.bucketIndex(key)].find(t, key)
	if i == 0 {
		return value, false
	}
	return t.entries.at(t.nodes.at(i).chain.head).value, true
}

// Contains reports whether any value is stored under key.
func (t *Table[V]) Contains(key uint32) bool {
	return t.buckets[t.bucketIndex(key)].find(t, key) != 0
}

// All calls yield sequentially for each key and value present in the table:
// buckets in ascending index order, keys within a bucket in ascending order,
// and the values of a key in insertion order. If yield returns false, All
// stops the iteration.
//
// yield may Remove the entry it was just handed (or any entry it was handed
// earlier); iteration continues with the next entry. Entries inserted during
// iteration may or may not be visited. Any other mutation during iteration is
// invalid.
func (t *Table[V]) All(yield func(key uint32, value V) bool) {
	for i := range t.buckets {
		if !t.buckets[i].all(t, yield) {
			return
		}
	}
}

// Possible calls yield for each key and value in the bucket that key hashes
// to, which includes every value stored under key along with any colliding
// keys. The iteration order and removal rules are those of All.
func (t *Table[V]) Possible(key uint32, yield func(key uint32, value V) bool) {
	t.buckets[t.bucketIndex(key)].all(t, yield)
}

// IsEmpty reports whether the table holds no entries.
func (t *Table[V]) IsEmpty() bool {
	return t.occupied.IsEmpty()
}

// Len returns the number of entries in the table.
func (t *Table[V]) Len() int {
	return t.used
}

// Keys returns the number of distinct keys in the table.
func (t *Table[V]) Keys() int {
	return t.keys
}

// Bits returns the bucket-count exponent the table was constructed with.
func (t *Table[V]) Bits() uint {
	return t.bits
}

// Buckets returns the number of buckets, 1<<Bits().
func (t *Table[V]) Buckets() int {
	return len(t.buckets)
}

// BucketOf returns the index of the bucket key hashes to.
func (t *Table[V]) BucketOf(key uint32) int {
	return int(t.bucketIndex(key))
}

// ClearBucket releases every entry in bucket i and returns the number
// released.
func (t *Table[V]) ClearBucket(i int) (int, error) {
	if i < 0 || i >= len(t.buckets) {
		return 0, fmt.Errorf("%w: bucket %d out of range [0, %d)", ErrInvalidArgument, i, len(t.buckets))
	}
	b := &t.buckets[i]
	t.keys -= b.keys
	released := b.clear(t)
	t.used -= released
	t.occupied.Remove(uint32(i))
	t.checkInvariants(uint32(i))
	return released, nil
}

// Clear deletes all entries from the table. The arenas keep their capacity.
func (t *Table[V]) Clear() {
	it := t.occupied.Iterator()
	for it.HasNext() {
		t.buckets[it.Next()] = bucket[V]{}
	}
	t.occupied.Clear()
	t.nodes.reset()
	t.entries.reset()
	t.logger.Debug("rbhash: cleared table", "keys", t.keys, "entries", t.used)
	t.keys, t.used = 0, 0
}

// Stats summarizes how entries are spread across the table.
type Stats struct {
	Buckets         int
	OccupiedBuckets int
	Keys            int
	Entries         int
	// MaxHeight is the height of the tallest bucket tree and MeanHeight the
	// mean height over occupied buckets.
	MaxHeight  int
	MeanHeight float64
	// MaxChain is the length of the longest duplicate chain.
	MaxChain      int
	NodeCapacity  int
	EntryCapacity int
}

// Stats walks every occupied bucket and returns a summary of the table's
// shape.
func (t *Table[V]) Stats() Stats {
	s := Stats{
		Buckets:         len(t.buckets),
		OccupiedBuckets: int(t.occupied.GetCardinality()),
		Keys:            t.keys,
		Entries:         t.used,
		NodeCapacity:    t.nodes.capacity(),
		EntryCapacity:   t.entries.capacity(),
	}
	var total int
	it := t.occupied.Iterator()
	for it.HasNext() {
		b := &t.buckets[it.Next()]
		h := b.height(t)
		total += h
		s.MaxHeight = max(s.MaxHeight, h)
		for i := b.minimum(t, b.root); i != 0; i = b.successor(t, i) {
			s.MaxChain = max(s.MaxChain, int(t.nodes.at(i).chain.len))
		}
	}
	if s.OccupiedBuckets > 0 {
		s.MeanHeight = float64(total) / float64(s.OccupiedBuckets)
	}
	return s
}

// bucketIndex returns the bucket for key.
func (t *Table[V]) bucketIndex(key uint32) uint32 {
	return t.hash(key, t.bits) & t.mask
}

func (t *Table[V]) reserveNode(key uint32) error {
	if t.nodes.reserve(1, t.allocator.AllocNodes, t.allocator.FreeNodes) {
		return nil
	}
	t.logger.Warn("rbhash: node allocation failed",
		"key", key, "nodes", t.nodes.used, "capacity", t.nodes.capacity())
	return fmt.Errorf("%w: growing node arena past %d nodes", ErrOutOfMemory, t.nodes.capacity())
}

func (t *Table[V]) reserveEntry(key uint32) error {
	if t.entries.reserve(1, t.allocator.AllocEntries, t.allocator.FreeEntries) {
		return nil
	}
	t.logger.Warn("rbhash: entry allocation failed",
		"key", key, "entries", t.entries.used, "capacity", t.entries.capacity())
	return fmt.Errorf("%w: growing entry arena past %d entries", ErrOutOfMemory, t.entries.capacity())
}

// checkInvariants verifies bucket i and the table-wide counts when the
// package is built with the invariants tag.
func (t *Table[V]) checkInvariants(i uint32) {
	if invariants {
		if err := t.buckets[i].verify(t, i); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, t.buckets[i].debugString(t)))
		}
		if err := t.verifyCounts(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v", err))
		}
	}
}

// verify checks every bucket and the table-wide bookkeeping.
func (t *Table[V]) verify() error {
	for i := range t.buckets {
		if err := t.buckets[i].verify(t, uint32(i)); err != nil {
			return fmt.Errorf("%w\n%s", err, t.buckets[i].debugString(t))
		}
	}
	return t.verifyCounts()
}

func (t *Table[V]) verifyCounts() error {
	var keys, used, occupied int
	for i := range t.buckets {
		b := &t.buckets[i]
		keys += b.keys
		used += b.entries
		if (b.root != 0) != t.occupied.Contains(uint32(i)) {
			return fmt.Errorf("bucket %d: root=%d but occupied=%t",
				i, b.root, t.occupied.Contains(uint32(i)))
		}
		if b.root != 0 {
			occupied++
		}
	}
	if keys != t.keys || used != t.used {
		return fmt.Errorf("found keys=%d entries=%d, but counts are keys=%d entries=%d",
			keys, used, t.keys, t.used)
	}
	if keys != t.nodes.used || used != t.entries.used {
		return fmt.Errorf("arenas hold %d nodes and %d entries, but table has %d keys and %d entries",
			t.nodes.used, t.entries.used, keys, used)
	}
	if uint64(occupied) != t.occupied.GetCardinality() {
		return fmt.Errorf("%d occupied buckets, but bitmap holds %d", occupied, t.occupied.GetCardinality())
	}
	if len(t.nodes.slots) > 0 && *t.nodes.at(0) != (Node{}) {
		return fmt.Errorf("nil sentinel modified: %+v", *t.nodes.at(0))
	}
	return nil
}
