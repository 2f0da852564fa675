// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// Free-list management (spec.md §4.6). The free list is a singly-linked
// LIFO stack threaded through each free slot's node[0].left field: the
// original overloads the same cell used for tree linkage, since a free
// slot is never also a tree node. header.headFree is the top-of-stack
// offset, 0 meaning empty.

func (s *Store) allocSlot() int64 {
	if s.hdr.headFree != 0 {
		off := s.hdr.headFree
		fr := s.readSlot(off)
		if len(fr.nodes) > 0 && !fr.isFree() {
			corrupt("free-list", "slot at %d on free list is not tagged free", off)
		}
		s.hdr.headFree = s.freeListNext(fr)
		return off
	}
	off := s.eof
	s.eof += int64(s.geom.slotLen)
	return off
}

// freeSlot pushes off back onto the free list. Callers must have already
// unlinked off from every tree, the sequential list, and the cursor
// registry.
func (s *Store) freeSlot(off int64) {
	fr := newSlot(s.geom)
	fr.markFree()
	if len(fr.nodes) > 0 {
		fr.nodes[0].left = s.hdr.headFree
	} else {
		// n_keys == 0: there is no node cell to thread through, so the
		// free list is threaded through each free slot's next field
		// instead (see freeListNext).
		fr.next = s.hdr.headFree
	}
	s.writeSlot(off, fr)
	s.hdr.headFree = off
}

func (s *Store) freeListNext(sl *slot) int64 {
	if len(sl.nodes) > 0 {
		return sl.nodes[0].left
	}
	return sl.next
}
