// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/blake3-go/guts"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errPlanMismatch is returned if any range of a plan fails its expectation.
var errPlanMismatch = errors.New("plan verification failed")

// plan is a list of byte ranges of a single input to hash as subtrees.
type plan struct {
	Ranges []planRange `yaml:"ranges"`
}

// planRange is a range within the input. The offset must be at a chunk
// boundary; the chunk index is derived from it and the --start flag.
type planRange struct {
	Name   string `yaml:"name"`
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`
	Root   bool   `yaml:"root"`
	Expect string `yaml:"expect,omitempty"` // Hex encoded expected hash
}

// loadPlan reads and parses a YAML plan file.
func loadPlan(path string) (*plan, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := new(plan)
	if err := yaml.Unmarshal(blob, p); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if len(p.Ranges) == 0 {
		return nil, fmt.Errorf("plan %s has no ranges", path)
	}
	return p, nil
}

func newPlanCommand(log *slog.Logger, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <plan.yaml> [file]",
		Short: "Hash every range listed in a YAML plan",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := loadPlan(args[0])
			if err != nil {
				return err
			}
			in, closer, err := openInput(cmd, args[1:], opts.snappy)
			if err != nil {
				return err
			}
			defer closer.Close()

			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			return runPlan(log, opts, pl, data, cmd.OutOrStdout())
		},
	}
}

// runPlan hashes all the ranges of a plan, printing one line per range and
// checking the expected hashes where given.
func runPlan(log *slog.Logger, opts *options, pl *plan, data []byte, out io.Writer) error {
	var (
		p      = opts.platform()
		failed int
	)
	for i, r := range pl.Ranges {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("range-%d", i)
		}
		hash, err := hashRange(p, opts, r, data)
		if err != nil {
			log.Error("Failed to hash range", "name", name, "offset", r.Offset, "length", r.Length, "err", err)
			return fmt.Errorf("range %s: %w", name, err)
		}
		fmt.Fprintf(out, "%s %s\n", hash, name)

		bytes := absoluteRange(opts, r)
		if r.Expect == "" {
			log.Debug("Hashed range", "name", name, "bytes", bytes, "hash", hash)
			continue
		}
		want, err := hex.DecodeString(r.Expect)
		if err != nil || len(want) != guts.OutLen {
			return fmt.Errorf("range %s: invalid expected hash %q", name, r.Expect)
		}
		if !hash.Equal(guts.Hash(want)) {
			log.Warn("Range hash mismatch", "name", name, "bytes", bytes, "have", hash, "want", r.Expect)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d ranges mismatched", errPlanMismatch, failed, len(pl.Ranges))
	}
	return nil
}

// hashRange hashes a single range of the input.
func hashRange(p *guts.Platform, opts *options, r planRange, data []byte) (guts.Hash, error) {
	if r.Offset%guts.ChunkLen != 0 {
		return guts.Hash{}, fmt.Errorf("offset %d not at a chunk boundary", r.Offset)
	}
	if r.Offset > uint64(len(data)) || r.Length > uint64(len(data))-r.Offset {
		return guts.Hash{}, fmt.Errorf("range [%d, +%d) beyond input of %d bytes", r.Offset, r.Length, len(data))
	}
	start := opts.start + r.Offset/guts.ChunkLen
	return guts.HashSubtreeWithStrategy(p, opts.strategy(), start, data[r.Offset:r.Offset+r.Length], r.Root)
}

// absoluteRange formats the byte range a plan entry covers within the whole
// message, taking the --start chunk into account.
func absoluteRange(opts *options, r planRange) string {
	tree := guts.Subtree{Start: opts.start + r.Offset/guts.ChunkLen, Len: r.Length}
	from, to := tree.ByteRange()
	return fmt.Sprintf("[%s, %s)", from.Dec(), to.Dec())
}
