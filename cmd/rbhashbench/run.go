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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/rbhash"
	"github.com/cockroachdb/rbhash/internal/listtable"
	"github.com/cockroachdb/rbhash/internal/workload"
)

type config struct {
	bits       uint
	sizes      []int
	dups       int
	degenerate bool
	pattern    workload.Pattern
	seed       uint64
}

func (c config) hash() rbhash.HashFunc {
	if c.degenerate {
		return func(uint32, uint) uint32 { return 0 }
	}
	return rbhash.Index
}

// PhaseResult is the time one phase took on each table.
type PhaseResult struct {
	Phase string        `json:"phase"`
	List  time.Duration `json:"list_ns"`
	Tree  time.Duration `json:"tree_ns"`
}

// SizeResult is the outcome of running every phase for one key count.
type SizeResult struct {
	Keys         int           `json:"keys"`
	Entries      int           `json:"entries"`
	Phases       []PhaseResult `json:"phases"`
	ListMaxChain int           `json:"list_max_chain"`
	Stats        rbhash.Stats  `json:"stats"`
}

// Report is the full output of a run.
type Report struct {
	Bits       uint         `json:"bits"`
	Dups       int          `json:"dups"`
	Pattern    string       `json:"pattern"`
	Degenerate bool         `json:"degenerate"`
	Results    []SizeResult `json:"results"`
}

func run(w io.Writer, logger *slog.Logger, cfg config) error {
	if cfg.bits == 0 || cfg.bits > rbhash.MaxBits {
		return fmt.Errorf("--bits must be in [1, %d], got %d", rbhash.MaxBits, cfg.bits)
	}
	report := Report{
		Bits:       cfg.bits,
		Dups:       max(cfg.dups, 1),
		Pattern:    cfg.pattern.String(),
		Degenerate: cfg.degenerate,
	}
	for _, n := range cfg.sizes {
		if n <= 0 {
			return fmt.Errorf("--keys must be positive, got %d", n)
		}
		logger.Debug("running workload", "keys", n, "dups", report.Dups, "pattern", report.Pattern)
		r, err := measure(logger, cfg, n)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, r)
	}

	if jsonOut {
		return printJSON(w, report)
	}
	printReport(w, report)
	return nil
}

// measure runs the insert, iterate, lookup and delete phases for n distinct
// keys on both tables.
func measure(logger *slog.Logger, cfg config, n int) (SizeResult, error) {
	load := workload.Spec{Keys: n, Dups: cfg.dups, Pattern: cfg.pattern, Seed: cfg.seed}
	distinct := load.DistinctKeys()
	inserts := load.Inserts()
	hash := cfg.hash()

	list := listtable.New[uint32](cfg.bits, hash)
	tree, err := rbhash.New[uint32](cfg.bits, rbhash.WithHash[uint32](hash), rbhash.WithLogger[uint32](logger))
	if err != nil {
		return SizeResult{}, err
	}
	defer tree.Close()

	res := SizeResult{Keys: n, Entries: len(inserts)}
	phase := func(name string, listFn func(), treeFn func() error) error {
		start := time.Now()
		listFn()
		p := PhaseResult{Phase: name, List: time.Since(start)}
		start = time.Now()
		if err := treeFn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		p.Tree = time.Since(start)
		logger.Debug("phase done", "keys", n, "phase", name, "list", p.List, "tree", p.Tree)
		res.Phases = append(res.Phases, p)
		return nil
	}

	err = phase("insert",
		func() {
			for _, k := range inserts {
				list.Add(k, k)
			}
		},
		func() error {
			for _, k := range inserts {
				if err := tree.Insert(k, k); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return res, err
	}
	res.ListMaxChain = list.MaxChain()
	res.Stats = tree.Stats()

	var listSum, treeSum uint64
	err = phase("iterate",
		func() {
			list.All(func(k, v uint32) bool {
				listSum += uint64(v)
				return true
			})
		},
		func() error {
			tree.All(func(k, v uint32) bool {
				treeSum += uint64(v)
				return true
			})
			return nil
		})
	if err != nil {
		return res, err
	}
	if listSum != treeSum {
		return res, fmt.Errorf("iterate: list sum %d != tree sum %d", listSum, treeSum)
	}

	var listHits, treeHits int
	err = phase("lookup",
		func() {
			for _, k := range distinct {
				list.Possible(k, func(key, _ uint32) bool {
					if key == k {
						listHits++
					}
					return true
				})
			}
		},
		func() error {
			for _, k := range distinct {
				v, err := tree.FindAll(k)
				if err != nil {
					return fmt.Errorf("key %d: %w", k, err)
				}
				treeHits += v.Len()
			}
			return nil
		})
	if err != nil {
		return res, err
	}
	if listHits != treeHits {
		return res, fmt.Errorf("lookup: list found %d entries, tree found %d", listHits, treeHits)
	}

	anyValue := rbhash.Any[uint32]()
	err = phase("delete",
		func() {
			list.All(func(k, _ uint32) bool {
				list.Delete(k)
				return true
			})
		},
		func() error {
			var err error
			tree.All(func(k, _ uint32) bool {
				_, err = tree.Remove(k, anyValue)
				return err == nil
			})
			return err
		})
	if err != nil {
		return res, err
	}
	if list.Len() != 0 || !tree.IsEmpty() {
		return res, fmt.Errorf("delete: %d list entries and %d tree entries left", list.Len(), tree.Len())
	}
	return res, nil
}

func printReport(w io.Writer, r Report) {
	printInfo(w, "bits=%d buckets=%d dups=%d pattern=%s degenerate=%t\n",
		r.Bits, 1<<r.Bits, r.Dups, r.Pattern, r.Degenerate)
	for _, s := range r.Results {
		printInfo(w, "\nkeys=%d entries=%d\n", s.Keys, s.Entries)
		printInfo(w, "  %-8s %14s %14s\n", "phase", "list", "rbtree")
		for _, p := range s.Phases {
			printInfo(w, "  %-8s %14s %14s\n", p.Phase, p.List, p.Tree)
		}
		printInfo(w, "  list: longest chain %d\n", s.ListMaxChain)
		printInfo(w, "  rbtree: %d/%d buckets used, max height %d, mean height %.1f, longest duplicate chain %d\n",
			s.Stats.OccupiedBuckets, s.Stats.Buckets, s.Stats.MaxHeight, s.Stats.MeanHeight, s.Stats.MaxChain)
	}
}
