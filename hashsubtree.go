// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	lguts "lukechampine.com/blake3/guts"
)

// Strategy selects how the two halves of a subtree are scheduled. Every
// strategy combines the halves in the same left-right order, so the result
// never depends on it.
type Strategy uint8

const (
	// Sequential hashes the whole subtree on the calling goroutine.
	Sequential Strategy = iota

	// Parallel hashes the left and right halves of large subtrees on
	// separate goroutines, up to the platform's parallelism.
	Parallel
)

// ParallelThreshold is the subtree size below which the parallel strategy
// stops forking and hashes on the current goroutine.
const ParallelThreshold = 16 * ChunkLen

// String implements fmt.Stringer.
func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// HashSubtree computes the hash of a subtree on a single goroutine.
//
// The range given by startChunk and the length of data must be a subtree as
// per IsSubtree, and only a range starting at chunk 0 may be the root of the
// message. Otherwise ErrInvalidSubtreeRange is returned.
func HashSubtree(p *Platform, startChunk uint64, data []byte, isRoot bool) (Hash, error) {
	return HashSubtreeWithStrategy(p, Sequential, startChunk, data, isRoot)
}

// HashSubtreeParallel is analogous to HashSubtree, but hashes the halves of
// large subtrees concurrently. The result is identical to HashSubtree.
func HashSubtreeParallel(p *Platform, startChunk uint64, data []byte, isRoot bool) (Hash, error) {
	return HashSubtreeWithStrategy(p, Parallel, startChunk, data, isRoot)
}

// HashSubtreeWithStrategy computes the hash of a subtree with an explicitly
// selected scheduling strategy.
//
// The data must not be modified until the call returns.
func HashSubtreeWithStrategy(p *Platform, s Strategy, startChunk uint64, data []byte, isRoot bool) (Hash, error) {
	tree := Subtree{Start: startChunk, Len: uint64(len(data)), Root: isRoot}
	if err := tree.Validate(); err != nil {
		return Hash{}, err
	}
	switch s {
	case Sequential:
		return hashSubtree(p, tree, data), nil

	case Parallel:
		f := &forker{platform: p}
		f.group.SetLimit(p.Parallelism() - 1)

		hash := f.hash(tree, data)
		f.group.Wait()
		return hash, nil

	default:
		return Hash{}, fmt.Errorf("guts: unknown hashing strategy: %v", s)
	}
}

// VerifySubtree recomputes the hash of a subtree and checks it against a
// detached hash, returning ErrSubtreeMismatch if they differ.
func VerifySubtree(p *Platform, startChunk uint64, data []byte, isRoot bool, want Hash) error {
	have, err := HashSubtree(p, startChunk, data, isRoot)
	if err != nil {
		return err
	}
	if !have.Equal(want) {
		return fmt.Errorf("%w: chunk %d, have %s, want %s", ErrSubtreeMismatch, startChunk, have, want)
	}
	return nil
}

// hashSubtree recursively splits a validated subtree into its chunks and
// combines their chaining values bottom up. On batching kernels the splitting
// stops at subtrees the library can hash in a single vectorised call.
func hashSubtree(p *Platform, tree Subtree, data []byte) Hash {
	if batch := p.batch(); tree.Len > ChunkLen && tree.Chunks() <= uint64(batch) {
		return finalize(compressBatch(tree.Start, data), tree.Root)
	}
	left, right, ok := tree.Split()
	if !ok {
		state := NewChunkState(p, tree.Start)
		state.update(data)
		return state.Finalize(tree.Root)
	}
	lcv := hashSubtree(p, left, data[:left.Len])
	rcv := hashSubtree(p, right, data[left.Len:])
	return ParentCV(p, lcv, rcv, tree.Root)
}

// batchPool holds the scratch buffers of runs shorter than a full batch.
var batchPool = sync.Pool{
	New: func() any { return new([lguts.MaxSIMD * lguts.ChunkSize]byte) },
}

// compressBatch hashes a subtree of at most lguts.MaxSIMD chunks with the
// library's vectorised chunk kernel and returns its pending top node.
func compressBatch(startChunk uint64, data []byte) lguts.Node {
	if len(data) == lguts.MaxSIMD*lguts.ChunkSize {
		return lguts.CompressBuffer((*[lguts.MaxSIMD * lguts.ChunkSize]byte)(data), len(data), &lguts.IV, startChunk, 0)
	}
	buf := batchPool.Get().(*[lguts.MaxSIMD * lguts.ChunkSize]byte)
	defer batchPool.Put(buf)

	n := copy(buf[:], data)
	return lguts.CompressBuffer(buf, n, &lguts.IV, startChunk, 0)
}

// forker is the fork-join scheduler of the parallel strategy. The group only
// bounds the number of live goroutines, joining happens per subtree.
type forker struct {
	platform *Platform
	group    errgroup.Group
}

// hash computes a subtree, offloading its left half to a new goroutine if the
// subtree is large enough and a worker slot is free. Otherwise the left half
// runs inline, so nested forks never wait on a slot.
func (f *forker) hash(tree Subtree, data []byte) Hash {
	if tree.Len < ParallelThreshold {
		return hashSubtree(f.platform, tree, data)
	}
	left, right, _ := tree.Split()

	var (
		lcv  Hash
		done = make(chan struct{})
	)
	forked := f.group.TryGo(func() error {
		defer close(done)
		lcv = f.hash(left, data[:left.Len])
		return nil
	})
	if !forked {
		lcv = f.hash(left, data[:left.Len])
		close(done)
	}
	rcv := f.hash(right, data[left.Len:])

	<-done
	return ParentCV(f.platform, lcv, rcv, tree.Root)
}
