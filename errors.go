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

import "errors"

var (
	// ErrInvalidArgument is returned when a Table is constructed with an
	// out-of-range bucket-count exponent, or when an operation is handed an
	// argument it cannot act on (a nil Selector, a bucket index past the end
	// of the table).
	ErrInvalidArgument = errors.New("rbhash: invalid argument")

	// ErrOutOfMemory is returned by Insert and InsertUnique when the
	// configured Allocator declines to provide storage for a new node or
	// entry. The table is left exactly as it was before the call.
	ErrOutOfMemory = errors.New("rbhash: out of memory")

	// ErrNotFound is returned by Remove and FindAll when no entry exists for
	// the key (or none matches the selector).
	ErrNotFound = errors.New("rbhash: not found")

	// ErrExists is returned by InsertUnique when the key is already present.
	ErrExists = errors.New("rbhash: key exists")
)
