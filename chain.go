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

// Selector picks which entry Remove takes out of a key's duplicate chain.
// The first entry, in insertion order, for which the Selector returns true is
// removed.
type Selector[V any] func(value V) bool

// Any returns a Selector matching every entry, so Remove takes the oldest
// entry for the key.
func Any[V any]() Selector[V] {
	return func(V) bool { return true }
}

// Match returns a Selector matching entries whose value equals v.
func Match[V comparable](v V) Selector[V] {
	return func(value V) bool { return value == v }
}

// chain is the FIFO list of entries sharing one key. It is embedded in the
// key's tree node and links entries by their index in the entry arena.
type chain struct {
	head, tail uint32
	len        uint32
}

func (c *chain) isEmpty() bool {
	return c.head == 0
}

// entries is the arena holding every Entry of a Table, along with the chain
// operations that thread entries together.
type entries[V any] struct {
	arena[Entry[V], *Entry[V]]
}

// push appends entry i to the tail of c.
func (es *entries[V]) push(c *chain, i uint32) {
	if c.tail == 0 {
		c.head = i
	} else {
		es.at(c.tail).next = i
	}
	c.tail = i
	c.len++
}

// popMatch unlinks the first entry of c matching sel and returns its index.
// The entry is not released.
func (es *entries[V]) popMatch(c *chain, sel Selector[V]) (uint32, bool) {
	var prev uint32
	for i := c.head; i != 0; {
		e := es.at(i)
		if sel(e.value) {
			es.unlink(c, prev, i)
			return i, true
		}
		prev, i = i, e.next
	}
	return 0, false
}

// unlink removes entry i, whose predecessor in c is prev (0 for the head).
func (es *entries[V]) unlink(c *chain, prev, i uint32) {
	e := es.at(i)
	if prev == 0 {
		c.head = e.next
	} else {
		es.at(prev).next = e.next
	}
	if c.tail == i {
		c.tail = prev
	}
	e.next = 0
	c.len--
}

// release returns every entry of c to the arena and empties c.
func (es *entries[V]) release(c *chain) {
	for i := c.head; i != 0; {
		next := es.at(i).next
		es.put(i)
		i = next
	}
	*c = chain{}
}
