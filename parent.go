// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import lguts "lukechampine.com/blake3/guts"

// finalize runs a pending node compression either as the root of the tree
// (output block 0) or as a chaining value. The node is set up but not yet run,
// so that the caller may still decide which of the two it is.
func finalize(n lguts.Node, isRoot bool) Hash {
	if isRoot {
		n.Counter = 0
		n.Flags |= lguts.FlagRoot
	}
	return cvBytes(lguts.ChainingValue(n))
}

// parentNode sets up the compression of two child chaining values.
func parentNode(left, right *Hash) lguts.Node {
	return lguts.ParentNode(cvWords(left), cvWords(right), &lguts.IV, 0)
}

// ParentCV combines the chaining values of two sibling subtrees into their
// parent's. The left child must cover the lower chunk range: the operation is
// not commutative. If isRoot is set, the parent is finalized as the root of
// the whole message.
func ParentCV(p *Platform, left, right Hash, isRoot bool) Hash {
	return finalize(parentNode(&left, &right), isRoot)
}

// cvBytes serializes a chaining value in little endian order.
func cvBytes(cv [8]uint32) Hash {
	var words [16]uint32
	copy(words[:], cv[:])

	var (
		block = lguts.WordsToBytes(words)
		hash  Hash
	)
	copy(hash[:], block[:OutLen])
	return hash
}

// cvWords is the inverse of cvBytes.
func cvWords(hash *Hash) [8]uint32 {
	var block [BlockLen]byte
	copy(block[:], hash[:])

	var (
		words = lguts.BytesToWords(block)
		cv    [8]uint32
	)
	copy(cv[:], words[:8])
	return cv
}
