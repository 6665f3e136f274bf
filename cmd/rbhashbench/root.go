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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/rbhash"
	"github.com/cockroachdb/rbhash/internal/workload"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool

	bits       uint
	sizes      []int
	dups       int
	degenerate bool
	pattern    string
	seed       uint64
)

var rootCmd = &cobra.Command{
	Use:   "rbhashbench",
	Short: "Compare a chained hash table with red-black tree buckets against a linked-list baseline",
	Long: `rbhashbench inserts every key of a workload into a small fixed-size hash
table twice, then times iteration, lookup by key and deletion during iteration.
It runs the same phases against a classic linked-list chained table and the
rbhash table, and reports the shape of the rbhash table afterwards.

Example:
  rbhashbench
  rbhashbench --bits 4 --keys 1000,50000 --pattern random
  rbhashbench --degenerate --json`,
	Args:    cobra.NoArgs,
	Version: "0.1.0",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := workload.ParsePattern(pattern)
		if err != nil {
			return err
		}
		cfg := config{
			bits:       bits,
			sizes:      sizes,
			dups:       dups,
			degenerate: degenerate,
			pattern:    p,
			seed:       seed,
		}
		return run(cmd.OutOrStdout(), newLogger(cmd.ErrOrStderr()), cfg)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")

	rootCmd.Flags().UintVar(&bits, "bits", 2, fmt.Sprintf("Bucket-count exponent, 1 to %d", rbhash.MaxBits))
	rootCmd.Flags().IntSliceVar(&sizes, "keys", []int{1000, 10000, 100000}, "Distinct key counts to run")
	rootCmd.Flags().IntVar(&dups, "dups", 2, "Times each key is inserted")
	rootCmd.Flags().BoolVar(&degenerate, "degenerate", false, "Route every key to bucket 0")
	rootCmd.Flags().StringVar(&pattern, "pattern", "sequential", "Key pattern: sequential, strided or random")
	rootCmd.Flags().Uint64Var(&seed, "seed", 1, "Seed for the random pattern")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger returns a text logger on w whose level follows --verbose and
// --quiet.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(w io.Writer, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
