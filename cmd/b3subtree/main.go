// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command b3subtree computes BLAKE3 root and subtree hashes of files.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/blake3-go/guts"
	"github.com/golang/snappy"
	"github.com/spf13/cobra"
)

func main() {
	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := newRootCommand(log, level).Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by all subcommands.
type options struct {
	start    uint64 // Chunk index of the first input byte
	root     bool   // Whether to finalize as the message root
	parallel bool   // Whether to hash with the parallel strategy
	workers  int    // Goroutine limit of the parallel strategy
	snappy   bool   // Whether the input is a snappy framed stream
	verbose  bool   // Whether to log at debug level
}

// strategy returns the hashing strategy selected by the flags.
func (o *options) strategy() guts.Strategy {
	if o.parallel {
		return guts.Parallel
	}
	return guts.Sequential
}

// platform returns the capability object to hash with.
func (o *options) platform() *guts.Platform {
	p := guts.Detect()
	if o.workers > 0 {
		p = p.WithParallelism(o.workers)
	}
	return p
}

func newRootCommand(log *slog.Logger, level *slog.LevelVar) *cobra.Command {
	opts := new(options)

	cmd := &cobra.Command{
		Use:          "b3subtree [file]",
		Short:        "Compute the BLAKE3 root or subtree hash of a file",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				level.Set(slog.LevelDebug)
			}
			if !cmd.Flags().Changed("root") {
				opts.root = opts.start == 0
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closer, err := openInput(cmd, args, opts.snappy)
			if err != nil {
				return err
			}
			defer closer.Close()

			p := opts.platform()
			log.Debug("Hashing input", "kernel", p.Name(), "features", p.Features(), "strategy", opts.strategy(), "start", opts.start, "root", opts.root)

			hash, n, err := hashStream(p, opts, in)
			if err != nil {
				log.Error("Failed to hash input", "err", err)
				return err
			}
			log.Debug("Hashed input", "bytes", n, "chunks", guts.ChunkCount(n))
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.Uint64Var(&opts.start, "start", 0, "chunk index of the first input byte")
	flags.BoolVar(&opts.root, "root", false, "finalize as the message root (default true iff --start is 0)")
	flags.BoolVar(&opts.parallel, "parallel", false, "hash subtrees on multiple goroutines")
	flags.IntVar(&opts.workers, "workers", 0, "goroutine limit of parallel hashing (default GOMAXPROCS)")
	flags.BoolVar(&opts.snappy, "snappy", false, "input is a snappy framed stream")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newPlanCommand(log, opts))
	return cmd
}

// openInput opens the file named in args, or the command's stdin without one,
// wrapping it in a snappy decoder if requested.
func openInput(cmd *cobra.Command, args []string, compressed bool) (io.Reader, io.Closer, error) {
	var (
		r      io.Reader = cmd.InOrStdin()
		closer io.Closer = io.NopCloser(nil)
	)
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, nil, err
		}
		r, closer = f, f
	}
	if compressed {
		r = snappy.NewReader(r)
	}
	return r, closer, nil
}

// hashStream hashes an input of unknown length. Sequential hashing streams
// the data through an incremental hasher, parallel hashing needs it all in
// memory first.
func hashStream(p *guts.Platform, opts *options, in io.Reader) (guts.Hash, uint64, error) {
	if opts.parallel {
		data, err := io.ReadAll(in)
		if err != nil {
			return guts.Hash{}, 0, err
		}
		hash, err := guts.HashSubtreeWithStrategy(p, opts.strategy(), opts.start, data, opts.root)
		return hash, uint64(len(data)), err
	}
	h := guts.NewHasherAt(p, opts.start)
	n, err := io.Copy(h, in)
	if err != nil {
		return guts.Hash{}, 0, err
	}
	tree := guts.Subtree{Start: opts.start, Len: uint64(n), Root: opts.root}
	if err := tree.Validate(); err != nil {
		return guts.Hash{}, 0, err
	}
	return h.FinalizeNode(opts.root), uint64(n), nil
}
