// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import (
	"encoding/hex"
	"errors"
	"testing"

	lukeblake3 "lukechampine.com/blake3"
	lguts "lukechampine.com/blake3/guts"
)

var testPlatform = Detect()

// Tests that finalizing a single block chunk as the root yields the canonical
// BLAKE3 hash of short inputs.
func TestSingleBlockRoot(t *testing.T) {
	for _, input := range []string{"", "a", "abc", "hello world", string(make([]byte, BlockLen))} {
		state := NewChunkState(Portable(), 0)
		state.Update([]byte(input))

		have := finalize(state.node(), true)
		if want := Hash(lukeblake3.Sum256([]byte(input))); have != want {
			t.Errorf("input %q: have %x, want %x", input, have, want)
		}
	}
}

// Tests the hash of the empty input against its well known value.
func TestEmptyInput(t *testing.T) {
	have := NewChunkState(Portable(), 0).Finalize(true)

	want := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if hex.EncodeToString(have[:]) != want {
		t.Fatalf("empty hash mismatch: have %x, want %s", have, want)
	}
}

// Tests that the word/byte conversions of chaining values are inverses.
func TestCVConversions(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(i * 7)
	}
	words := cvWords(&h)
	if back := cvBytes(words); back != h {
		t.Fatalf("conversion mismatch: have %x, want %x", back, h)
	}
	if words[0] != 0x150e0700 {
		t.Fatalf("little endian word mismatch: have %#x, want %#x", words[0], 0x150e0700)
	}
}

// Tests that parent nodes keep the left child in the low words and compress
// with the parent flag under the IV at counter zero.
func TestParentNode(t *testing.T) {
	left := cvBytes([8]uint32{1, 2, 3, 4, 5, 6, 7, 8})
	right := cvBytes([8]uint32{9, 10, 11, 12, 13, 14, 15, 16})

	n := parentNode(&left, &right)
	for i := 0; i < 16; i++ {
		if n.Block[i] != uint32(i+1) {
			t.Fatalf("word %d: have %d, want %d", i, n.Block[i], i+1)
		}
	}
	if n.CV != lguts.IV || n.Counter != 0 || n.BlockLen != BlockLen || n.Flags != lguts.FlagParent {
		t.Fatalf("parent node setup mismatch: %+v", n)
	}
	want := lguts.CompressNode(lguts.Node{CV: lguts.IV, Block: n.Block, BlockLen: BlockLen, Flags: lguts.FlagParent | lguts.FlagRoot})
	if have := ParentCV(testPlatform, left, right, true); have != cvBytes([8]uint32(want[:8])) {
		t.Fatalf("root parent mismatch: have %x, want %x", have, cvBytes([8]uint32(want[:8])))
	}
}

// Tests that hashing a short input as a single root chunk equals the hash of
// the whole message.
func TestChunk(t *testing.T) {
	state := NewChunkState(testPlatform, 0)
	if err := state.Update([]byte("foo")); err != nil {
		t.Fatalf("failed to update chunk: %v", err)
	}
	have := state.Finalize(true)
	want := Hash(lukeblake3.Sum256([]byte("foo")))
	if have != want {
		t.Fatalf("chunk hash mismatch: have %x, want %x", have, want)
	}
}

// Tests that manually assembling a three chunk tree equals the incremental
// hash of the concatenated chunks.
func TestParents(t *testing.T) {
	var (
		hasher = lukeblake3.New(OutLen, nil)
		buf    = make([]byte, ChunkLen)
	)
	buf[0] = 'a'
	hasher.Write(buf)
	chunk0 := NewChunkState(testPlatform, 0)
	chunk0.Update(buf)

	buf[0] = 'b'
	hasher.Write(buf)
	chunk1 := NewChunkState(testPlatform, 1)
	chunk1.Update(buf)

	hasher.Write([]byte("c"))
	chunk2 := NewChunkState(testPlatform, 2)
	chunk2.Update([]byte("c"))

	parent := ParentCV(testPlatform, chunk0.Finalize(false), chunk1.Finalize(false), false)
	root := ParentCV(testPlatform, parent, chunk2.Finalize(false), true)

	var want Hash
	copy(want[:], hasher.Sum(nil))
	if root != want {
		t.Fatalf("root hash mismatch: have %x, want %x", root, want)
	}
}

// Tests that swapping the children of a parent changes its chaining value.
func TestParentOrder(t *testing.T) {
	left := NewChunkState(testPlatform, 0)
	left.Update([]byte("left"))
	right := NewChunkState(testPlatform, 1)
	right.Update([]byte("right"))

	lcv, rcv := left.Finalize(false), right.Finalize(false)
	for _, root := range []bool{false, true} {
		forward := ParentCV(testPlatform, lcv, rcv, root)
		if again := ParentCV(testPlatform, lcv, rcv, root); again != forward {
			t.Errorf("root %v: parent not deterministic: have %x, want %x", root, again, forward)
		}
		if backward := ParentCV(testPlatform, rcv, lcv, root); backward == forward {
			t.Errorf("root %v: parent commutative: %x", root, forward)
		}
	}
	if ParentCV(testPlatform, lcv, rcv, false) == ParentCV(testPlatform, lcv, rcv, true) {
		t.Errorf("root flag ignored by parent")
	}
}

// Tests that finalization is repeatable, does not consume the state and
// distinguishes root from chaining values.
func TestChunkStateFinalizeRepeatable(t *testing.T) {
	state := NewChunkState(testPlatform, 0)
	state.Update(make([]byte, 100))

	cv, root := state.Finalize(false), state.Finalize(true)
	if cv == root {
		t.Fatalf("chaining value equals root hash: %x", cv)
	}
	if again := state.Finalize(false); again != cv {
		t.Errorf("chaining value changed: have %x, want %x", again, cv)
	}
	if again := state.Finalize(true); again != root {
		t.Errorf("root hash changed: have %x, want %x", again, root)
	}
	if state.Len() != 100 {
		t.Errorf("length changed by finalization: have %d, want %d", state.Len(), 100)
	}
	// Continue feeding after finalization
	state.Update(make([]byte, 50))
	if have, want := state.Finalize(true), Hash(lukeblake3.Sum256(make([]byte, 150))); have != want {
		t.Errorf("hash after resumed update mismatch: have %x, want %x", have, want)
	}
}

// Tests that chunks split across many updates hash the same as one update.
func TestChunkStateUpdates(t *testing.T) {
	data := make([]byte, ChunkLen)
	for i := range data {
		data[i] = byte(i % 251)
	}
	for _, step := range []int{1, 7, 63, 64, 65, 512, ChunkLen} {
		state := NewChunkState(testPlatform, 0)
		for i := 0; i < len(data); i += step {
			end := i + step
			if end > len(data) {
				end = len(data)
			}
			if err := state.Update(data[i:end]); err != nil {
				t.Fatalf("step %d: failed to update: %v", step, err)
			}
		}
		if state.Len() != ChunkLen {
			t.Errorf("step %d: length mismatch: have %d, want %d", step, state.Len(), ChunkLen)
		}
		if have, want := state.Finalize(true), Hash(lukeblake3.Sum256(data)); have != want {
			t.Errorf("step %d: hash mismatch: have %x, want %x", step, have, want)
		}
	}
}

// Tests that overfeeding a chunk is rejected without corrupting it.
func TestChunkStateOverflow(t *testing.T) {
	state := NewChunkState(testPlatform, 5)
	if _, err := state.Write(make([]byte, ChunkLen-1)); err != nil {
		t.Fatalf("failed to fill chunk: %v", err)
	}
	before := state.Finalize(false)

	if n, err := state.Write(make([]byte, 2)); !errors.Is(err, ErrChunkOverflow) || n != 0 {
		t.Fatalf("overflow mismatch: have (%d, %v), want (0, %v)", n, err, ErrChunkOverflow)
	}
	if state.Len() != ChunkLen-1 {
		t.Fatalf("rejected write consumed data: length %d", state.Len())
	}
	if after := state.Finalize(false); after != before {
		t.Fatalf("rejected write changed state: have %x, want %x", after, before)
	}
	if err := state.Update([]byte{0}); err != nil {
		t.Fatalf("failed to fill last byte: %v", err)
	}
	if err := state.Update(nil); err != nil {
		t.Fatalf("empty update on full chunk failed: %v", err)
	}
	if err := state.Update([]byte{0}); !errors.Is(err, ErrChunkOverflow) {
		t.Fatalf("full chunk accepted data: %v", err)
	}
	if state.ChunkCounter() != 5 {
		t.Fatalf("chunk counter mismatch: have %d, want 5", state.ChunkCounter())
	}
}

// Tests that the chunk counter is mixed into chaining values.
func TestChunkCounter(t *testing.T) {
	a := NewChunkState(testPlatform, 0)
	a.Update([]byte("same"))
	b := NewChunkState(testPlatform, 1)
	b.Update([]byte("same"))

	if a.Finalize(false) == b.Finalize(false) {
		t.Fatalf("chunk counter ignored")
	}
}

func TestHashString(t *testing.T) {
	h := Hash(lukeblake3.Sum256(nil))
	if want := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"; h.String() != want {
		t.Fatalf("string mismatch: have %s, want %s", h, want)
	}
	if !h.Equal(h) {
		t.Fatalf("hash not equal to itself")
	}
	other := h
	other[31] ^= 1
	if h.Equal(other) {
		t.Fatalf("distinct hashes reported equal")
	}
}
