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

import (
	"fmt"
	"strings"
)

// bucket is one slot of a Table: a red-black tree with one node per distinct
// key. The nodes and the entries of their chains live in the Table's arenas,
// so every method takes the owning Table.
//
// The deletion algorithm splices nodes in and out rather than swapping node
// contents, so a node keeps its arena index for as long as it is in the
// tree. Iteration relies on this.
type bucket[V any] struct {
	root uint32
	// keys is the number of nodes in the tree.
	keys int
	// entries is the number of entries across all of the tree's chains.
	entries int
}

// find returns the index of the node holding key, or 0.
func (b *bucket[V]) find(t *Table[V], key uint32) uint32 {
	i := b.root
	for i != 0 {
		n := t.nodes.at(i)
		switch {
		case key < n.key:
			i = n.left
		case key > n.key:
			i = n.right
		default:
			return i
		}
	}
	return 0
}

// insert adds value under key. If the key is already present the value is
// appended to the key's chain, or ErrExists is returned when unique is set.
// Otherwise a new red leaf is linked and the tree rebalanced.
//
// Every allocation happens before the first link is written, so a failure
// leaves the bucket untouched.
func (b *bucket[V]) insert(t *Table[V], key uint32, value V, unique bool) error {
	var parent uint32
	i := b.root
	for i != 0 {
		n := t.nodes.at(i)
		parent = i
		switch {
		case key < n.key:
			i = n.left
		case key > n.key:
			i = n.right
		default:
			if unique {
				return ErrExists
			}
			if err := t.reserveEntry(key); err != nil {
				return err
			}
			e := t.entries.get()
			t.entries.at(e).value = value
			t.entries.push(&n.chain, e)
			b.entries++
			if debug {
				fmt.Printf("insert(%d): appended entry %d to node %d (chain=%d)\n",
					key, e, i, n.chain.len)
			}
			return nil
		}
	}

	if err := t.reserveNode(key); err != nil {
		return err
	}
	if err := t.reserveEntry(key); err != nil {
		return err
	}

	z := t.nodes.get()
	e := t.entries.get()
	t.entries.at(e).value = value

	n := t.nodes.at(z)
	n.key = key
	n.parent = parent
	n.color = red
	t.entries.push(&n.chain, e)

	switch {
	case parent == 0:
		b.root = z
	case key < t.nodes.at(parent).key:
		t.nodes.at(parent).left = z
	default:
		t.nodes.at(parent).right = z
	}
	b.keys++
	b.entries++
	if debug {
		fmt.Printf("insert(%d): linked node %d under %d\n", key, z, parent)
	}

	b.insertFixup(t, z)
	return nil
}

// insertFixup restores the red-black properties after z was linked as a red
// leaf. The nil sentinel is black, so the loop stops at the root.
func (b *bucket[V]) insertFixup(t *Table[V], z uint32) {
	nodes := &t.nodes
	for nodes.at(nodes.at(z).parent).color == red {
		p := nodes.at(z).parent
		g := nodes.at(p).parent
		if p == nodes.at(g).left {
			u := nodes.at(g).right
			if nodes.at(u).color == red {
				// Parent and uncle are both red: push the red up.
				nodes.at(p).color = black
				nodes.at(u).color = black
				nodes.at(g).color = red
				z = g
				continue
			}
			if z == nodes.at(p).right {
				z = p
				b.rotate(t, z, true)
				p = nodes.at(z).parent
			}
			nodes.at(p).color = black
			nodes.at(g).color = red
			b.rotate(t, g, false)
		} else {
			u := nodes.at(g).left
			if nodes.at(u).color == red {
				nodes.at(p).color = black
				nodes.at(u).color = black
				nodes.at(g).color = red
				z = g
				continue
			}
			if z == nodes.at(p).left {
				z = p
				b.rotate(t, z, false)
				p = nodes.at(z).parent
			}
			nodes.at(p).color = black
			nodes.at(g).color = red
			b.rotate(t, g, true)
		}
	}
	nodes.at(b.root).color = black
}

// remove takes the first entry matching sel out of key's chain. When the
// chain empties the node is deleted from the tree.
func (b *bucket[V]) remove(t *Table[V], key uint32, sel Selector[V]) (V, error) {
	var value V
	z := b.find(t, key)
	if z == 0 {
		return value, ErrNotFound
	}
	n := t.nodes.at(z)
	e, ok := t.entries.popMatch(&n.chain, sel)
	if !ok {
		return value, ErrNotFound
	}
	value = t.entries.at(e).value
	t.entries.put(e)
	b.entries--

	if n.chain.isEmpty() {
		if debug {
			fmt.Printf("remove(%d): chain empty, deleting node %d\n", key, z)
		}
		b.delete(t, z)
		t.nodes.put(z)
		b.keys--
	}
	return value, nil
}

// delete unlinks node z from the tree and rebalances. z is not released.
//
// When z has two children its in-order successor y is moved into z's
// position. y keeps its index.
func (b *bucket[V]) delete(t *Table[V], z uint32) {
	nodes := &t.nodes
	zn := nodes.at(z)

	var x uint32
	removed := zn.color
	switch {
	case zn.left == 0:
		x = zn.right
		b.transplant(t, z, zn.right)
	case zn.right == 0:
		x = zn.left
		b.transplant(t, z, zn.left)
	default:
		y := b.minimum(t, zn.right)
		yn := nodes.at(y)
		removed = yn.color
		x = yn.right
		if yn.parent == z {
			// x may be the sentinel; its parent is read by deleteFixup.
			nodes.at(x).parent = y
		} else {
			b.transplant(t, y, yn.right)
			yn.right = zn.right
			nodes.at(yn.right).parent = y
		}
		b.transplant(t, z, y)
		yn.left = zn.left
		nodes.at(yn.left).parent = y
		yn.color = zn.color
	}

	if removed == black {
		b.deleteFixup(t, x)
	}

	// The sentinel may have picked up a parent link (and been recolored)
	// along the way.
	*nodes.at(0) = Node{}
	zn.parent, zn.left, zn.right = 0, 0, 0
}

// deleteFixup restores the red-black properties after a black node was
// removed above x. x carries an extra black.
func (b *bucket[V]) deleteFixup(t *Table[V], x uint32) {
	nodes := &t.nodes
	for x != b.root && nodes.at(x).color == black {
		p := nodes.at(x).parent
		if x == nodes.at(p).left {
			w := nodes.at(p).right
			if nodes.at(w).color == red {
				nodes.at(w).color = black
				nodes.at(p).color = red
				b.rotate(t, p, true)
				w = nodes.at(p).right
			}
			wn := nodes.at(w)
			if nodes.at(wn.left).color == black && nodes.at(wn.right).color == black {
				wn.color = red
				x = p
				continue
			}
			if nodes.at(wn.right).color == black {
				nodes.at(wn.left).color = black
				wn.color = red
				b.rotate(t, w, false)
				w = nodes.at(p).right
				wn = nodes.at(w)
			}
			wn.color = nodes.at(p).color
			nodes.at(p).color = black
			nodes.at(wn.right).color = black
			b.rotate(t, p, true)
			x = b.root
		} else {
			w := nodes.at(p).left
			if nodes.at(w).color == red {
				nodes.at(w).color = black
				nodes.at(p).color = red
				b.rotate(t, p, false)
				w = nodes.at(p).left
			}
			wn := nodes.at(w)
			if nodes.at(wn.left).color == black && nodes.at(wn.right).color == black {
				wn.color = red
				x = p
				continue
			}
			if nodes.at(wn.left).color == black {
				nodes.at(wn.right).color = black
				wn.color = red
				b.rotate(t, w, true)
				w = nodes.at(p).left
				wn = nodes.at(w)
			}
			wn.color = nodes.at(p).color
			nodes.at(p).color = black
			nodes.at(wn.left).color = black
			b.rotate(t, p, false)
			x = b.root
		}
	}
	nodes.at(x).color = black
}

// transplant replaces the subtree rooted at u with the subtree rooted at v.
// v's parent link is written even when v is the sentinel.
func (b *bucket[V]) transplant(t *Table[V], u, v uint32) {
	nodes := &t.nodes
	up := nodes.at(u).parent
	switch {
	case up == 0:
		b.root = v
	case u == nodes.at(up).left:
		nodes.at(up).left = v
	default:
		nodes.at(up).right = v
	}
	nodes.at(v).parent = up
}

// rotate performs a tree rotation around pivot. isLeft=true performs a left
// rotation, isLeft=false a right rotation.
//
// Left rotation:
//
//	  X              Y
//	A   Y    =>    X   C
//	  B C        A B
//
// Right rotation:
//
//	    Y            X
//	  X   C  =>    A   Y
//	A B              B C
func (b *bucket[V]) rotate(t *Table[V], pivot uint32, isLeft bool) {
	nodes := &t.nodes
	pn := nodes.at(pivot)

	var child, inner uint32
	if isLeft {
		child = pn.right
		inner = nodes.at(child).left
		pn.right = inner
	} else {
		child = pn.left
		inner = nodes.at(child).right
		pn.left = inner
	}
	if inner != 0 {
		nodes.at(inner).parent = pivot
	}

	cn := nodes.at(child)
	cn.parent = pn.parent
	switch {
	case pn.parent == 0:
		b.root = child
	case pivot == nodes.at(pn.parent).left:
		nodes.at(pn.parent).left = child
	default:
		nodes.at(pn.parent).right = child
	}

	if isLeft {
		cn.left = pivot
	} else {
		cn.right = pivot
	}
	pn.parent = child
}

// minimum returns the leftmost node of the subtree rooted at i.
func (b *bucket[V]) minimum(t *Table[V], i uint32) uint32 {
	if i == 0 {
		return 0
	}
	for l := t.nodes.at(i).left; l != 0; l = t.nodes.at(i).left {
		i = l
	}
	return i
}

// successor returns the in-order successor of node i, or 0.
func (b *bucket[V]) successor(t *Table[V], i uint32) uint32 {
	n := t.nodes.at(i)
	if n.right != 0 {
		return b.minimum(t, n.right)
	}
	for p := n.parent; p != 0; p = t.nodes.at(i).parent {
		if i == t.nodes.at(p).left {
			return p
		}
		i = p
	}
	return 0
}

// all calls yield for each entry of the bucket in ascending key order, the
// entries of a key in insertion order. It returns false if yield did.
//
// The next entry and, on a chain's last entry, the successor node are
// captured before yield is called, so yield may remove the entry it was just
// handed. Arena pointers are re-fetched after every yield because yield may
// also insert and grow the arenas.
func (b *bucket[V]) all(t *Table[V], yield func(key uint32, value V) bool) bool {
	for i := b.minimum(t, b.root); i != 0; {
		n := t.nodes.at(i)
		key := n.key
		var next uint32
		for e := n.chain.head; e != 0; {
			en := t.entries.at(e)
			value, following := en.value, en.next
			if following == 0 {
				next = b.successor(t, i)
			}
			if !yield(key, value) {
				return false
			}
			e = following
		}
		i = next
	}
	return true
}

// removeFunc removes every entry for which pred returns true and returns the
// number removed. Nodes whose chains empty are deleted once their chain has
// been walked, after their successor has been captured.
func (b *bucket[V]) removeFunc(t *Table[V], pred func(key uint32, value V) bool) int {
	var removed int
	for i := b.minimum(t, b.root); i != 0; {
		n := t.nodes.at(i)
		var prev uint32
		for e := n.chain.head; e != 0; {
			en := t.entries.at(e)
			following := en.next
			if pred(n.key, en.value) {
				t.entries.unlink(&n.chain, prev, e)
				t.entries.put(e)
				b.entries--
				removed++
			} else {
				prev = e
			}
			e = following
		}
		next := b.successor(t, i)
		if n.chain.isEmpty() {
			b.delete(t, i)
			t.nodes.put(i)
			b.keys--
		}
		i = next
	}
	return removed
}

// clear releases every node and entry of the bucket and returns the number
// of entries released. The tree is dismantled bottom-up by following parent
// links, so no recursion or auxiliary stack is needed.
func (b *bucket[V]) clear(t *Table[V]) int {
	i := b.root
	for i != 0 {
		n := t.nodes.at(i)
		if n.left != 0 {
			i = n.left
			continue
		}
		if n.right != 0 {
			i = n.right
			continue
		}
		p := n.parent
		if p != 0 {
			if pn := t.nodes.at(p); pn.left == i {
				pn.left = 0
			} else {
				pn.right = 0
			}
		}
		t.entries.release(&n.chain)
		t.nodes.put(i)
		i = p
	}
	released := b.entries
	*b = bucket[V]{}
	return released
}

// height returns the number of nodes on the longest root-to-leaf path.
func (b *bucket[V]) height(t *Table[V]) int {
	var walk func(i uint32) int
	walk = func(i uint32) int {
		if i == 0 {
			return 0
		}
		n := t.nodes.at(i)
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(b.root)
}

// verify checks the ordering, routing, coloring, parent-link and chain
// invariants of the bucket at index.
func (b *bucket[V]) verify(t *Table[V], index uint32) error {
	if b.root == 0 {
		if b.keys != 0 || b.entries != 0 {
			return fmt.Errorf("bucket %d: empty tree but keys=%d entries=%d",
				index, b.keys, b.entries)
		}
		return nil
	}
	root := t.nodes.at(b.root)
	if root.parent != 0 {
		return fmt.Errorf("bucket %d: root %d has parent %d", index, b.root, root.parent)
	}
	if root.color != black {
		return fmt.Errorf("bucket %d: root %d is red", index, b.root)
	}

	var keys, entries int
	var walk func(i uint32, lo, hi uint64) (int, error)
	walk = func(i uint32, lo, hi uint64) (int, error) {
		if i == 0 {
			return 1, nil
		}
		n := t.nodes.at(i)
		if k := uint64(n.key); k < lo || k > hi {
			return 0, fmt.Errorf("bucket %d: node %d key %d outside [%d, %d]", index, i, n.key, lo, hi)
		}
		if got := t.bucketIndex(n.key); got != index {
			return 0, fmt.Errorf("bucket %d: node %d key %d belongs in bucket %d", index, i, n.key, got)
		}
		for _, c := range [2]uint32{n.left, n.right} {
			if c == 0 {
				continue
			}
			cn := t.nodes.at(c)
			if cn.parent != i {
				return 0, fmt.Errorf("bucket %d: node %d has parent %d, expected %d", index, c, cn.parent, i)
			}
			if n.color == red && cn.color == red {
				return 0, fmt.Errorf("bucket %d: red node %d has red child %d", index, i, c)
			}
		}
		if n.chain.isEmpty() {
			return 0, fmt.Errorf("bucket %d: node %d key %d has an empty chain", index, i, n.key)
		}
		var length, last uint32
		for e := n.chain.head; e != 0; e = t.entries.at(e).next {
			length++
			last = e
		}
		if length != n.chain.len || last != n.chain.tail {
			return 0, fmt.Errorf("bucket %d: node %d chain len=%d tail=%d, walked len=%d tail=%d",
				index, i, n.chain.len, n.chain.tail, length, last)
		}
		keys++
		entries += int(length)

		var lh, rh int
		var err error
		if n.key > 0 {
			if lh, err = walk(n.left, lo, uint64(n.key)-1); err != nil {
				return 0, err
			}
		} else if n.left != 0 {
			return 0, fmt.Errorf("bucket %d: node %d key 0 has a left child", index, i)
		} else {
			lh = 1
		}
		if rh, err = walk(n.right, uint64(n.key)+1, hi); err != nil {
			return 0, err
		}
		if lh != rh {
			return 0, fmt.Errorf("bucket %d: node %d black heights differ: left=%d right=%d", index, i, lh, rh)
		}
		if n.color == black {
			lh++
		}
		return lh, nil
	}
	if _, err := walk(b.root, 0, 1<<32-1); err != nil {
		return err
	}
	if keys != b.keys || entries != b.entries {
		return fmt.Errorf("bucket %d: found keys=%d entries=%d, but counts are keys=%d entries=%d",
			index, keys, entries, b.keys, b.entries)
	}
	return nil
}

func (b *bucket[V]) debugString(t *Table[V]) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "root=%d  keys=%d  entries=%d\n", b.root, b.keys, b.entries)
	var walk func(i uint32, depth int)
	walk = func(i uint32, depth int) {
		if i == 0 {
			return
		}
		n := t.nodes.at(i)
		walk(n.right, depth+1)
		fmt.Fprintf(&buf, "%s%d [%s idx=%d chain=%d]\n",
			strings.Repeat("    ", depth), n.key, n.color, i, n.chain.len)
		walk(n.left, depth+1)
	}
	walk(b.root, 0)
	return buf.String()
}
