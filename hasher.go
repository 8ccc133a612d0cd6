// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import "hash"

var _ hash.Hash = (*Hasher)(nil)

// Hasher incrementally hashes a subtree (or an entire message) that is
// streamed in left to right. It is the non-splitting counterpart of
// HashSubtree and produces the exact same hashes.
//
// Completed chunks are merged into a chaining value stack as soon as a full
// power-of-two run of them is available. The last chunk is kept open until
// more data arrives, as only then it is known not to be the root.
type Hasher struct {
	platform *Platform

	start uint64      // Chunk index the hasher started at
	chunk *ChunkState // Currently open chunk
	stack []Hash      // Chaining values of completed subtrees, largest first
}

// NewHasher creates a hasher for a message starting at chunk 0.
func NewHasher(p *Platform) *Hasher {
	return NewHasherAt(p, 0)
}

// NewHasherAt creates a hasher for a subtree starting at the given chunk. The
// caller is responsible for writing a range that is a valid subtree.
func NewHasherAt(p *Platform, startChunk uint64) *Hasher {
	return &Hasher{
		platform: p,
		start:    startChunk,
		chunk:    NewChunkState(p, startChunk),
	}
}

// Write feeds more data into the hasher. It never returns an error.
func (h *Hasher) Write(b []byte) (int, error) {
	n := len(b)
	for len(b) > 0 {
		if h.chunk.Len() == ChunkLen {
			cv := h.chunk.Finalize(false)
			h.pushChunk(cv, h.chunk.counter-h.start+1)
			h.chunk = NewChunkState(h.platform, h.chunk.counter+1)
		}
		take := ChunkLen - h.chunk.Len()
		if take > len(b) {
			take = len(b)
		}
		h.chunk.update(b[:take])
		b = b[take:]
	}
	return n, nil
}

// pushChunk adds a completed chunk's chaining value to the stack, merging
// every subtree it completes. The number of trailing zero bits in the chunk
// total is the number of merges due.
func (h *Hasher) pushChunk(cv Hash, total uint64) {
	for total&1 == 0 {
		cv = ParentCV(h.platform, h.stack[len(h.stack)-1], cv, false)
		h.stack = h.stack[:len(h.stack)-1]
		total >>= 1
	}
	h.stack = append(h.stack, cv)
}

// FinalizeNode returns the hash of everything written so far, either as the
// root of the message or as the chaining value of the subtree. It does not
// modify the hasher, so writing may continue afterwards.
func (h *Hasher) FinalizeNode(isRoot bool) Hash {
	node := h.chunk.node()
	for i := len(h.stack) - 1; i >= 0; i-- {
		cv := finalize(node, false)
		node = parentNode(&h.stack[i], &cv)
	}
	return finalize(node, isRoot)
}

// Sum appends the hash of the data written so far to b. For a hasher started
// at chunk 0 that is the root hash. Any other range can never be the root, so
// its chaining value is appended instead.
func (h *Hasher) Sum(b []byte) []byte {
	sum := h.FinalizeNode(h.start == 0)
	return append(b, sum[:]...)
}

// Reset discards all written data, keeping the start chunk.
func (h *Hasher) Reset() {
	h.chunk = NewChunkState(h.platform, h.start)
	h.stack = h.stack[:0]
}

// Size returns the number of bytes Sum appends.
func (h *Hasher) Size() int {
	return OutLen
}

// BlockSize returns the hasher's preferred write size, a full chunk.
func (h *Hasher) BlockSize() int {
	return ChunkLen
}
