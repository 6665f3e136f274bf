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

// goldenRatio32 is the 32-bit multiplier used by the Linux kernel's
// hash_32(). It is 2^32 divided by the golden ratio, rounded to an odd
// number, which spreads consecutive keys across the high bits of the product.
const goldenRatio32 = 0x61C88647

// MaxBits is the largest bucket-count exponent accepted by New. A table with
// MaxBits has 16M buckets.
const MaxBits = 24

// HashFunc maps a key to a bucket index in [0, 1<<bits). Implementations
// must be pure and should distribute a large key set roughly uniformly over
// the buckets. A Table masks the result to the bucket range, so a HashFunc
// that returns larger values is not unsafe, merely wasteful.
type HashFunc func(key uint32, bits uint) uint32

// Index returns the bucket index for key in a table of 1<<bits buckets using
// multiplicative (Fibonacci) hashing: the top bits of key*goldenRatio32.
// Index(key, 0) is 0 for every key.
func Index(key uint32, bits uint) uint32 {
	if bits == 0 {
		return 0
	}
	return (key * goldenRatio32) >> (32 - bits)
}
