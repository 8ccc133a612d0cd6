// guts: BLAKE3 subtree hashing internals
// Copyright 2024 guts Authors
// SPDX-License-Identifier: BSD-3-Clause

package guts

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	lguts "lukechampine.com/blake3/guts"
)

// kernel is a leaf hashing implementation along with the CPU features it
// needs to run.
type kernel struct {
	name  string
	needs []cpuid.FeatureID
	batch int // Whole chunks hashed per vectorised call, 0 for block by block
}

// kernels is the list of available leaf implementations, fastest first. The
// last entry must not need any CPU features.
var kernels = []kernel{
	{name: "avx512", needs: []cpuid.FeatureID{cpuid.AVX512F}, batch: lguts.MaxSIMD},
	{name: "avx2", needs: []cpuid.FeatureID{cpuid.AVX2}, batch: lguts.MaxSIMD},
	{name: "portable"},
}

// probedFeatures are the CPU features reported by a Platform. They are the
// ones SIMD BLAKE3 kernels are usually built on.
var probedFeatures = []cpuid.FeatureID{
	cpuid.SSE2, cpuid.SSE4, cpuid.AVX2, cpuid.AVX512F, cpuid.AVX512VL, cpuid.ASIMD,
}

// Platform is the capability object selecting how chunks are hashed. It is
// built once, read only after and safe to share between goroutines.
//
// Platforms should be created with Detect or Portable. The zero value is
// usable too: it hashes with the portable kernel on a single worker.
type Platform struct {
	kernel   kernel
	features []cpuid.FeatureID
	workers  int
}

// Detect probes the CPU and returns a platform using the fastest kernel the
// machine can run. The result should be constructed once and passed around.
func Detect() *Platform {
	p := &Platform{workers: runtime.GOMAXPROCS(0)}
	for _, id := range probedFeatures {
		if cpuid.CPU.Supports(id) {
			p.features = append(p.features, id)
		}
	}
	for _, k := range kernels {
		if len(k.needs) == 0 || cpuid.CPU.Supports(k.needs...) {
			p.kernel = k
			break
		}
	}
	return p
}

// Portable returns a platform using the pure Go kernel without probing the
// CPU. Its parallelism is a single worker.
func Portable() *Platform {
	return &Platform{
		kernel:  kernels[len(kernels)-1],
		workers: 1,
	}
}

// WithParallelism returns a copy of the platform that uses at most n worker
// goroutines for parallel subtree hashing. Values below 1 are treated as 1.
func (p *Platform) WithParallelism(n int) *Platform {
	if n < 1 {
		n = 1
	}
	cpy := *p
	cpy.workers = n
	return &cpy
}

// Name returns the name of the selected kernel.
func (p *Platform) Name() string {
	if p.kernel.name == "" {
		return kernels[len(kernels)-1].name
	}
	return p.kernel.name
}

// Features returns the names of the detected CPU features.
func (p *Platform) Features() []string {
	names := make([]string, 0, len(p.features))
	for _, id := range p.features {
		names = append(names, id.String())
	}
	return names
}

// Parallelism returns the maximum number of goroutines parallel hashing may
// run on. It is never below 1.
func (p *Platform) Parallelism() int {
	if p.workers < 1 {
		return 1
	}
	return p.workers
}

// batch returns the number of whole chunks the kernel hashes in one go, or 0
// if chunks are hashed block by block.
func (p *Platform) batch() int {
	return p.kernel.batch
}
