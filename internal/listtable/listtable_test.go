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

package listtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fib(key uint32, bits uint) uint32 {
	if bits == 0 {
		return 0
	}
	return (key * 0x61C88647) >> (32 - bits)
}

func TestBasic(t *testing.T) {
	m := New[int](2, fib)
	require.Equal(t, 4, m.Buckets())

	for k := uint32(0); k < 100; k++ {
		m.Add(k, int(k))
		m.Add(k, int(k)+100)
	}
	require.Equal(t, 200, m.Len())

	for k := uint32(0); k < 100; k++ {
		v, ok := m.Get(k)
		require.True(t, ok)
		require.Equal(t, int(k)+100, v)
	}
	_, ok := m.Get(1000)
	require.False(t, ok)

	require.True(t, m.Delete(5))
	v, ok := m.Get(5)
	require.True(t, ok)
	require.Equal(t, 5, v)
	require.True(t, m.Delete(5))
	require.False(t, m.Delete(5))
	require.Equal(t, 198, m.Len())

	m.Clear()
	require.Equal(t, 0, m.Len())
	m.All(func(uint32, int) bool {
		require.Fail(t, "should not iterate")
		return true
	})
}

func TestDeleteDuringIteration(t *testing.T) {
	m := New[int](3, fib)
	for k := uint32(0); k < 500; k++ {
		m.Add(k%100, int(k))
	}
	var visited int
	m.All(func(k uint32, _ int) bool {
		visited++
		require.True(t, m.Delete(k))
		return true
	})
	require.Equal(t, 500, visited)
	require.Equal(t, 0, m.Len())
}

func TestPossible(t *testing.T) {
	m := New[int](4, fib)
	for k := uint32(0); k < 1000; k++ {
		m.Add(k, int(k))
	}
	var n int
	m.Possible(7, func(k uint32, _ int) bool {
		require.Equal(t, fib(7, 4), fib(k, 4))
		n++
		return true
	})
	require.Positive(t, n)
	require.LessOrEqual(t, n, m.MaxChain())
}

func TestRemoveFunc(t *testing.T) {
	m := New[int](2, func(uint32, uint) uint32 { return 0 })
	for k := uint32(0); k < 100; k++ {
		m.Add(k, int(k))
	}
	require.Equal(t, 100, m.MaxChain())
	require.Equal(t, 50, m.RemoveFunc(func(k uint32, _ int) bool { return k%2 == 0 }))
	require.Equal(t, 50, m.Len())
	m.All(func(k uint32, _ int) bool {
		require.EqualValues(t, 1, k%2)
		return true
	})
}
