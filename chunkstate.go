// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import (
	"fmt"

	lguts "lukechampine.com/blake3/guts"
)

// ChunkState incrementally hashes a single chunk of at most ChunkLen bytes.
//
// The final block of the chunk is only compressed on finalization, since its
// flags depend on whether it turns out to be the root. Finalize does not
// consume the state: it may be called many times, with either root flag, and
// more data may be fed in between as long as the chunk has room.
type ChunkState struct {
	platform *Platform

	cv      [8]uint32 // Chaining value after the fully compressed blocks
	counter uint64    // Index of the chunk within the message

	block      [BlockLen]byte // Pending (not yet compressed) block, zero padded
	blockLen   int            // Number of bytes in the pending block
	compressed int            // Number of blocks already compressed
}

// NewChunkState creates the state for hashing the chunk at the given index.
func NewChunkState(p *Platform, chunkCounter uint64) *ChunkState {
	return &ChunkState{
		platform: p,
		cv:       lguts.IV,
		counter:  chunkCounter,
	}
}

// Len returns the number of bytes fed into the chunk so far.
func (s *ChunkState) Len() int {
	return s.compressed*BlockLen + s.blockLen
}

// ChunkCounter returns the index of the chunk within the message.
func (s *ChunkState) ChunkCounter() uint64 {
	return s.counter
}

// startFlag returns the chunk start flag if no block was compressed yet.
func (s *ChunkState) startFlag() uint32 {
	if s.compressed == 0 {
		return lguts.FlagChunkStart
	}
	return 0
}

// Update feeds more data into the chunk. If the chunk would grow beyond
// ChunkLen bytes, ErrChunkOverflow is returned and no data is consumed.
func (s *ChunkState) Update(input []byte) error {
	if len(input) > ChunkLen-s.Len() {
		return fmt.Errorf("%w: have %d bytes, adding %d", ErrChunkOverflow, s.Len(), len(input))
	}
	s.update(input)
	return nil
}

// update feeds data into the chunk without checking its capacity.
func (s *ChunkState) update(input []byte) {
	// Batching kernels hand whole chunks to the library in one call
	if s.Len() == 0 && len(input) == ChunkLen && s.platform.batch() > 0 {
		n := lguts.CompressChunk(input, &lguts.IV, s.counter, 0)
		s.cv = n.CV
		s.compressed = ChunkLen/BlockLen - 1
		s.blockLen = copy(s.block[:], input[ChunkLen-BlockLen:])
		return
	}
	for len(input) > 0 {
		// Compress the pending block only if there's more data coming, the
		// final block is left open for finalization
		if s.blockLen == BlockLen {
			s.cv = lguts.ChainingValue(lguts.Node{
				CV:       s.cv,
				Block:    lguts.BytesToWords(s.block),
				Counter:  s.counter,
				BlockLen: BlockLen,
				Flags:    s.startFlag(),
			})
			s.compressed++

			s.block = [BlockLen]byte{}
			s.blockLen = 0
		}
		n := copy(s.block[s.blockLen:], input)
		s.blockLen += n
		input = input[n:]
	}
}

// Write implements io.Writer on top of Update. Short writes never happen: the
// data is either consumed fully or rejected with ErrChunkOverflow.
func (s *ChunkState) Write(p []byte) (int, error) {
	if err := s.Update(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// node returns the pending compression of the chunk's final block.
func (s *ChunkState) node() lguts.Node {
	return lguts.Node{
		CV:       s.cv,
		Block:    lguts.BytesToWords(s.block),
		Counter:  s.counter,
		BlockLen: uint32(s.blockLen),
		Flags:    s.startFlag() | lguts.FlagChunkEnd,
	}
}

// Finalize returns the chaining value of the chunk, or its root hash if the
// chunk is the entire message. Only chunk 0 can meaningfully be a root.
func (s *ChunkState) Finalize(isRoot bool) Hash {
	return finalize(s.node(), isRoot)
}
