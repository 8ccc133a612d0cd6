// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import "errors"

// ErrInvalidSubtreeRange is returned when a (start chunk, length) pair does
// not describe a power-of-two aligned subtree, or when a root hash is asked
// for a range that does not begin at the first chunk.
var ErrInvalidSubtreeRange = errors.New("guts: invalid subtree range")

// ErrChunkOverflow is returned when more than ChunkLen bytes are fed into a
// single chunk state.
var ErrChunkOverflow = errors.New("guts: chunk capacity exceeded")

// ErrSubtreeMismatch is returned when a detached subtree hash does not match
// the hash recomputed from the data.
var ErrSubtreeMismatch = errors.New("guts: subtree hash mismatch")
