package rbhash

import (
	"fmt"
	"io"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"github.com/cockroachdb/rbhash/internal/listtable"
	"github.com/cockroachdb/rbhash/internal/workload"
)

// benchBits matches the small fixed bucket array the tree buckets are meant
// for: long collision lists in the baseline, balanced trees here.
const benchBits = 2

func BenchmarkTableInsert(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTableInsert))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTableInsert))
}

func BenchmarkTableIter(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTableIter))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTableIter))
}

func BenchmarkTableGetHit(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTableGetHit))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTableGetHit))
}

func BenchmarkTableGetMiss(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTableGetMiss))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTableGetMiss))
}

func BenchmarkTablePutDelete(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTablePutDelete))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTablePutDelete))
}

func BenchmarkTableRemoveFunc(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTableRemoveFunc))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTableRemoveFunc))
}

func BenchmarkTableRemoveAll(b *testing.B) {
	b.Run("impl=listTable", benchSizes(benchmarkListTableRemoveAll))
	b.Run("impl=rbTable", benchSizes(benchmarkRBTableRemoveAll))
}

type benchFunc func(b *testing.B, hash HashFunc, keys []uint32)

// benchSizes runs f over the key counts of the classic hashtable benchmark,
// every key inserted twice, with both a good hash and one that sends every
// key to bucket 0.
func benchSizes(f benchFunc) func(*testing.B) {
	var cases = []int{
		1000,
		10000,
		100000,
	}
	hashes := []struct {
		name string
		hash HashFunc
	}{
		{"fib", Index},
		{"degenerate", func(uint32, uint) uint32 { return 0 }},
	}

	return func(b *testing.B) {
		for _, h := range hashes {
			for _, n := range cases {
				keys := workload.Spec{Keys: n, Dups: 2, Pattern: workload.Random, Seed: uint64(n)}.Inserts()
				b.Run(fmt.Sprintf("hash=%s/len=%d", h.name, n), func(b *testing.B) {
					f(b, h.hash, keys)
				})
			}
		}
	}
}

func newBenchListTable(hash HashFunc, keys []uint32) *listtable.Table[uint32] {
	m := listtable.New[uint32](benchBits, hash)
	for _, k := range keys {
		m.Add(k, k)
	}
	return m
}

func newBenchRBTable(b *testing.B, hash HashFunc, keys []uint32) *Table[uint32] {
	m, err := New[uint32](benchBits, WithHash[uint32](hash))
	if err != nil {
		b.Fatal(err)
	}
	for _, k := range keys {
		if err := m.Insert(k, k); err != nil {
			b.Fatal(err)
		}
	}
	return m
}

func benchmarkListTableInsert(b *testing.B, hash HashFunc, keys []uint32) {
	m := listtable.New[uint32](benchBits, hash)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		m.Clear()
		for _, k := range keys {
			m.Add(k, k)
		}
	}
}

func benchmarkRBTableInsert(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, nil)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		m.Clear()
		for _, k := range keys {
			if err := m.Insert(k, k); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func benchmarkListTableIter(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchListTable(hash, keys)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var tmp uint32
	for i := 0; i < b.N; i++ {
		m.All(func(k, v uint32) bool {
			tmp += k + v
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkRBTableIter(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, keys)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var tmp uint32
	for i := 0; i < b.N; i++ {
		m.All(func(k, v uint32) bool {
			tmp += k + v
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkListTableGetHit(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchListTable(hash, keys)
	lookups := workload.Shuffle(keys, 1)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(lookups[i%len(lookups)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRBTableGetHit(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, keys)
	lookups := workload.Shuffle(keys, 1)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(lookups[i%len(lookups)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkListTableGetMiss(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchListTable(hash, keys)
	miss := workload.Misses(keys, 1024, 1)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i&(len(miss)-1)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRBTableGetMiss(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, keys)
	miss := workload.Misses(keys, 1024, 1)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i&(len(miss)-1)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkListTablePutDelete(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchListTable(hash, keys)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		m.Delete(k)
		m.Add(k, k)
	}
}

func benchmarkRBTablePutDelete(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, keys)
	anyValue := Any[uint32]()
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		if _, err := m.Remove(k, anyValue); err != nil {
			b.Fatal(err)
		}
		if err := m.Insert(k, k); err != nil {
			b.Fatal(err)
		}
	}
}

// The RemoveFunc benchmarks drop every other key's entries in one pass and
// put them back outside the timed region.

func benchmarkListTableRemoveFunc(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchListTable(hash, keys)
	odd := func(k, _ uint32) bool { return k&1 == 1 }
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var removed int
	for i := 0; i < b.N; i++ {
		removed += m.RemoveFunc(odd)
		b.StopTimer()
		cs.Stop()
		m.Clear()
		for _, k := range keys {
			m.Add(k, k)
		}
		cs.Start()
		b.StartTimer()
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, removed)
}

func benchmarkRBTableRemoveFunc(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, keys)
	odd := func(k, _ uint32) bool { return k&1 == 1 }
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var removed int
	for i := 0; i < b.N; i++ {
		removed += m.RemoveFunc(odd)
		b.StopTimer()
		cs.Stop()
		m.Clear()
		for _, k := range keys {
			if err := m.Insert(k, k); err != nil {
				b.Fatal(err)
			}
		}
		cs.Start()
		b.StartTimer()
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, removed)
}

// The RemoveAll benchmarks are the safe-delete phase: every entry removed
// while iterating.

func benchmarkListTableRemoveAll(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchListTable(hash, keys)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		cs.Stop()
		for _, k := range keys {
			m.Add(k, k)
		}
		cs.Start()
		b.StartTimer()
		m.All(func(k, _ uint32) bool {
			m.Delete(k)
			return true
		})
	}
}

func benchmarkRBTableRemoveAll(b *testing.B, hash HashFunc, keys []uint32) {
	m := newBenchRBTable(b, hash, nil)
	anyValue := Any[uint32]()
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		cs.Stop()
		for _, k := range keys {
			if err := m.Insert(k, k); err != nil {
				b.Fatal(err)
			}
		}
		cs.Start()
		b.StartTimer()
		m.All(func(k, _ uint32) bool {
			if _, err := m.Remove(k, anyValue); err != nil {
				b.Fatal(err)
			}
			return true
		})
	}
}
