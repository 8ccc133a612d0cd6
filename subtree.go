// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// ChunkCount returns the number of chunks a byte length spans. A zero length
// spans zero chunks, though it's hashed as a single empty chunk.
func ChunkCount(length uint64) uint64 {
	chunks := length / ChunkLen
	if length%ChunkLen != 0 {
		chunks++
	}
	return chunks
}

// nextPowerOfTwo returns the smallest power of two not smaller than v, with
// zero mapping to one.
func nextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

// IsSubtree reports whether length bytes starting at chunk startChunk form a
// subtree of the hash tree, that is whether the start is a multiple of the
// chunk count rounded up to a power of two.
func IsSubtree(startChunk, length uint64) bool {
	mask := nextPowerOfTwo(ChunkCount(length)) - 1
	return startChunk&mask == 0
}

// Subtree describes a range of the message to be hashed on its own.
type Subtree struct {
	Start uint64 // Index of the first chunk of the range
	Len   uint64 // Length of the range in bytes
	Root  bool   // Whether the range is the entire message
}

// Validate checks that the descriptor is a hashable subtree: its range must be
// power-of-two aligned and only a range starting at chunk 0 can be the root.
func (s Subtree) Validate() error {
	if !IsSubtree(s.Start, s.Len) {
		from, to := s.ByteRange()
		return fmt.Errorf("%w: bytes [%s, %s) at chunk %d not aligned to %d chunks", ErrInvalidSubtreeRange, from.Dec(), to.Dec(), s.Start, nextPowerOfTwo(s.Chunks()))
	}
	if s.Root && s.Start != 0 {
		from, _ := s.ByteRange()
		return fmt.Errorf("%w: root requested at chunk %d (byte %s)", ErrInvalidSubtreeRange, s.Start, from.Dec())
	}
	return nil
}

// Chunks returns the number of chunks in the range.
func (s Subtree) Chunks() uint64 {
	return ChunkCount(s.Len)
}

// Split returns the two children of a subtree spanning more than one chunk.
// The left child always holds a power-of-two number of full chunks, the right
// child the rest. Neither child is a root. If the subtree is a single chunk,
// ok is false.
func (s Subtree) Split() (left, right Subtree, ok bool) {
	if s.Len <= ChunkLen {
		return Subtree{}, Subtree{}, false
	}
	mid := nextPowerOfTwo(s.Chunks()) / 2
	left = Subtree{Start: s.Start, Len: mid * ChunkLen}
	right = Subtree{Start: s.Start + mid, Len: s.Len - left.Len}
	return left, right, true
}

// ByteRange returns the absolute byte offsets [from, to) of the range within
// the message. Chunk counters are 64 bit, so the offsets may not fit in one.
func (s Subtree) ByteRange() (from, to *uint256.Int) {
	from = new(uint256.Int).Mul(uint256.NewInt(s.Start), uint256.NewInt(ChunkLen))
	to = new(uint256.Int).Add(from, uint256.NewInt(s.Len))
	return from, to
}

// String implements fmt.Stringer.
func (s Subtree) String() string {
	if s.Root {
		return fmt.Sprintf("root{chunk %d, %d bytes}", s.Start, s.Len)
	}
	return fmt.Sprintf("subtree{chunk %d, %d bytes}", s.Start, s.Len)
}
