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

// Package workload generates the key sequences driven through the tables by
// the benchmarks and the rbhashbench command.
package workload

import (
	"fmt"
	"math/rand/v2"
)

// Pattern selects how distinct keys are chosen.
type Pattern int

const (
	// Sequential keys are 0, 1, 2, ...
	Sequential Pattern = iota
	// Strided keys are multiples of 4096, which defeats hashes that only
	// look at the low bits. Workloads of more than 1<<20 keys use the largest
	// power-of-two stride that keeps every key distinct.
	Strided
	// Random keys are drawn uniformly from the full uint32 range.
	Random
)

const maxStrideShift = 12

var patternNames = [...]string{
	Sequential: "sequential",
	Strided:    "strided",
	Random:     "random",
}

func (p Pattern) String() string {
	if p < 0 || int(p) >= len(patternNames) {
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
	return patternNames[p]
}

// ParsePattern returns the Pattern named s.
func ParsePattern(s string) (Pattern, error) {
	for i, name := range patternNames {
		if name == s {
			return Pattern(i), nil
		}
	}
	return 0, fmt.Errorf("workload: unknown pattern %q", s)
}

// Spec describes a workload.
type Spec struct {
	// Keys is the number of distinct keys.
	Keys int
	// Dups is the number of times each key is inserted. Values below 1 are
	// treated as 1.
	Dups    int
	Pattern Pattern
	Seed    uint64
}

// DistinctKeys returns the distinct keys of s, in generation order.
func (s Spec) DistinctKeys() []uint32 {
	keys := make([]uint32, s.Keys)
	switch s.Pattern {
	case Sequential:
		for i := range keys {
			keys[i] = uint32(i)
		}
	case Strided:
		shift := strideShift(s.Keys)
		for i := range keys {
			keys[i] = uint32(i) << shift
		}
	case Random:
		r := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
		seen := make(map[uint32]struct{}, s.Keys)
		for i := range keys {
			for {
				k := r.Uint32()
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					keys[i] = k
					break
				}
			}
		}
	default:
		panic(fmt.Sprintf("workload: unknown pattern %d", int(s.Pattern)))
	}
	return keys
}

// strideShift returns log2 of the Strided stride for n keys: 12, or less if
// n<<12 would not fit in a uint32.
func strideShift(n int) uint {
	shift := uint(maxStrideShift)
	for shift > 0 && uint64(n)<<shift > 1<<32 {
		shift--
	}
	return shift
}

// Inserts returns the insertion sequence of s: each distinct key repeated
// Dups times back to back.
func (s Spec) Inserts() []uint32 {
	dups := max(s.Dups, 1)
	distinct := s.DistinctKeys()
	keys := make([]uint32, 0, len(distinct)*dups)
	for _, k := range distinct {
		for j := 0; j < dups; j++ {
			keys = append(keys, k)
		}
	}
	return keys
}

// Misses returns n keys that are not among keys.
func Misses(keys []uint32, n int, seed uint64) []uint32 {
	present := make(map[uint32]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}
	}
	r := rand.New(rand.NewPCG(seed, ^seed))
	misses := make([]uint32, 0, n)
	for len(misses) < n {
		k := r.Uint32()
		if _, ok := present[k]; !ok {
			misses = append(misses, k)
		}
	}
	return misses
}

// Shuffle returns a shuffled copy of keys.
func Shuffle(keys []uint32, seed uint64) []uint32 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := append([]uint32(nil), keys...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
