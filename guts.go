// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package guts exposes the Merkle tree layer of BLAKE3: chunk chaining
// values, parent combinations and the hashing of independently verifiable
// subtrees, sequentially or on multiple goroutines.
//
// A subtree is a power-of-two aligned run of chunks. Hashing one yields a
// chaining value that can be combined with its siblings via ParentCV, and the
// result is bit for bit identical to hashing the whole message in one go.
package guts

import (
	"crypto/subtle"
	"encoding/hex"
)

const (
	// ChunkLen is the number of bytes in a single leaf of the hash tree.
	ChunkLen = 1024

	// BlockLen is the number of bytes consumed by one compression.
	BlockLen = 64

	// OutLen is the size of chaining values and hashes.
	OutLen = 32
)

// Hash is either a chaining value or a root finalized BLAKE3 hash. The two
// cannot be told apart by representation, only by how they were produced.
type Hash [OutLen]byte

// String implements fmt.Stringer, returning the hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Equal reports whether two hashes are the same, in constant time.
func (h Hash) Equal(other Hash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}
