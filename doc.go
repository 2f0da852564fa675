// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package avlfile implements an embedded, single-file, multi-indexed
// record store.
//
// A store persists a homogeneous collection of fixed-length records,
// indexed by one or more caller-defined keys. Records are addressable
// both in unordered sequential (insertion) order and, per key, in sorted
// order with forward/backward navigation. The on-disk structure is a set
// of threaded AVL trees — one per key — sharing a single pool of
// fixed-size slots, interleaved with a free list, a sequential
// doubly-linked list, and a registry of per-opener cursor records.
//
// The format is not portable across machine endianness and has no crash
// recovery: a write interrupted mid-operation leaves the file corrupted,
// and the package panics (rather than silently continuing) when it
// detects structural impossibility — a read past the cached EOF
// watermark, a broken list link, or an out-of-range balance factor.
//
// Multiple processes may open the same file concurrently; every mutating
// or navigating operation is serialized by an advisory byte-range lock on
// the file (see Store.Lock for the one lock left for callers to use
// across several operations).
package avlfile
