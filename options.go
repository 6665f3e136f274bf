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

import "log/slog"

// option provide an interface to do work on Table while it is being created.
type option[V any] interface {
	apply(t *Table[V])
}

type hashOption[V any] struct {
	hash HashFunc
}

func (op hashOption[V]) apply(t *Table[V]) {
	t.hash = op.hash
}

// WithHash is an option to specify the hash function used to select the
// bucket for a key. The default is Index.
func WithHash[V any](hash HashFunc) option[V] {
	return hashOption[V]{hash}
}

// Allocator specifies an interface for allocating and releasing the node and
// entry arenas used by a Table. The default allocator utilizes Go's builtin
// make() and allows the GC to reclaim memory.
//
// An allocator reports failure by returning a slice shorter than requested
// (typically nil). The Table then fails the operation that needed the memory
// with ErrOutOfMemory and leaves its contents untouched.
//
// If the allocator is manually managing memory and requires that nodes and
// entries be freed then Table.Close must be called in order to ensure
// FreeNodes and FreeEntries are called.
type Allocator[V any] interface {
	// AllocNodes should return a slice equivalent to make([]Node, n).
	AllocNodes(n int) []Node

	// AllocEntries should return a slice equivalent to make([]Entry[V], n).
	AllocEntries(n int) []Entry[V]

	// FreeNodes can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocNodes.
	FreeNodes(v []Node)

	// FreeEntries can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocEntries.
	FreeEntries(v []Entry[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocNodes(n int) []Node {
	return make([]Node, n)
}

func (defaultAllocator[V]) AllocEntries(n int) []Entry[V] {
	return make([]Entry[V], n)
}

func (defaultAllocator[V]) FreeNodes(v []Node) {
}

func (defaultAllocator[V]) FreeEntries(v []Entry[V]) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(t *Table[V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table[V].
func WithAllocator[V any](allocator Allocator[V]) option[V] {
	return allocatorOption[V]{allocator}
}

type loggerOption[V any] struct {
	logger *slog.Logger
}

func (op loggerOption[V]) apply(t *Table[V]) {
	t.logger = op.logger
}

// WithLogger is an option to specify the logger a Table reports allocation
// failures and bulk releases to. By default nothing is logged.
func WithLogger[V any](logger *slog.Logger) option[V] {
	return loggerOption[V]{logger}
}
