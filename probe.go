// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import "github.com/bits-and-blooms/bloom/v3"

// This is the domain-stack accelerator described in SPEC_FULL.md §2: a
// per-key, in-memory, non-persistent existence filter rebuilt by one
// forward scan on Open and kept current on every Insert/Update. It never
// touches the on-disk format and never produces a false negative, so
// Find always falls back to a real tree descent when the filter can't
// answer confidently (notably, when the caller's target isn't a full
// payload — see below).
//
// A filter can only be trusted against a target built from the same byte
// universe it was populated with. This package stores whole payloads in
// the filter (the only bytes reliably available during a forward scan),
// so the probe is consulted only when Find's target is itself a full
// payload (len(target) == payload_len); shorter "key-only" probes skip
// the filter entirely rather than risk a false negative from hashing
// incomparable byte strings.
const (
	probeExpectedItems     = 1024
	probeFalsePositiveRate = 0.01
)

func newProbe() *bloom.BloomFilter {
	return bloom.NewWithEstimates(probeExpectedItems, probeFalsePositiveRate)
}

// rebuildProbes repopulates every key's filter from a single forward scan
// of the sequential list. Called once from initOrLoad when opening an
// existing file, unless WithoutExistenceProbe was given.
func (s *Store) rebuildProbes() {
	for k := range s.probes {
		s.probes[k] = newProbe()
	}
	off := s.hdr.headSeq
	for off != 0 {
		sl := s.readSlot(off)
		for k := range s.probes {
			s.probes[k].Add(sl.payload)
		}
		off = sl.next
	}
}

// updateProbes adds off's payload to every key's filter after an insert.
func (s *Store) updateProbes(off int64) {
	if s.opts.skipProbeScan || len(s.probes) == 0 {
		return
	}
	payload := s.getPayload(off)
	for k := range s.probes {
		if s.probes[k] == nil {
			s.probes[k] = newProbe()
		}
		s.probes[k].Add(payload)
	}
}

// probeSaysAbsent reports whether the key'th filter confidently rules out
// target's presence. It only ever returns true when certain — any
// uncertainty (filter not built, or target not a full payload) returns
// false, meaning "proceed with a real lookup."
func (s *Store) probeSaysAbsent(key int, target []byte) bool {
	p := s.probes[key]
	if p == nil || int32(len(target)) != s.geom.payloadLen {
		return false
	}
	return !p.Test(target)
}
