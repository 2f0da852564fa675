// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// Cursor slots are persistent per-opener records (spec.md §3 "Cursor
// create/destroy", §9 "Cursor-as-persistent-object"): every handle that
// opens a file claims a slot tagged tagCursor, stamps its pid into the
// slot's payload prefix, and holds a byte-range lock on that slot's file
// offset for as long as the handle lives. A crashed opener leaves its
// cursor slot locked by a dead pid; the compactor's Phase A (compact.go)
// detects this with a non-blocking lock probe and reaps it.
//
// The slot's navigation state lives on disk, not in the Go Store value
// (spec.md §4.5, §9): node[k].left/right hold the predecessor/successor
// of this opener's current position under key k, and prev holds its
// sequential-scan position (seqlist.go). header.headCursor threads the
// cursor registry as a singly-linked list through each cursor slot's
// next field — distinct from node[0].left, which free slots use for the
// same purpose (alloc.go) — so that node[k].left/right stay free to
// carry per-key pivots, and the registry still works for n_keys == 0
// stores that have no node cells at all.

// acquireCursor finds or creates this handle's cursor slot, mirroring
// avl_file_open's scan over the existing cursor list (probing each one's
// lock with a non-blocking trylock to find a slot abandoned by a dead
// process of the same pid, before falling back to allocating a new one).
func (s *Store) acquireCursor() error {
	if s.cursorSlot != 0 {
		return nil
	}
	off := s.hdr.headCursor
	for off != 0 {
		cur := s.readSlot(off)
		if len(cur.nodes) > 0 && !cur.isCursor() {
			corrupt("cursor-list", "slot at %d on cursor list is not tagged cursor", off)
		}
		owner, ok := cur.ownerPID(s.geom.payloadLen)
		if ok && owner == s.pid {
			locked, err := s.lock.tryLockRange(off, 1)
			if err != nil {
				return err
			}
			if locked {
				s.cursorSlot = off
				return nil
			}
		}
		off = cur.next
	}

	newOff := s.allocSlot()
	cur := newSlot(s.geom)
	cur.markCursor()
	cur.setOwnerPID(s.pid, s.geom.payloadLen)
	cur.next = s.hdr.headCursor
	s.writeSlot(newOff, cur)
	s.hdr.headCursor = newOff

	locked, err := s.lock.tryLockRange(newOff, 1)
	if err != nil {
		return err
	}
	if !locked {
		corrupt("cursor-lock", "could not lock freshly allocated cursor slot at %d", newOff)
	}
	s.cursorSlot = newOff
	return nil
}

// releaseCursorLocked unlinks this handle's cursor slot from the registry
// and returns it to the free list. Caller must hold s.mu and the op lock.
func (s *Store) releaseCursorLocked() {
	off := s.cursorSlot
	s.unlinkCursor(off)
	s.freeSlot(off)
	s.lock.unlockRange(off, 1)
	s.cursorSlot = 0
}

// unlinkCursor removes off from the cursor registry's linked list.
func (s *Store) unlinkCursor(off int64) {
	if s.hdr.headCursor == off {
		cur := s.readSlot(off)
		s.hdr.headCursor = cur.next
		return
	}
	prev := s.hdr.headCursor
	for prev != 0 {
		p := s.readSlot(prev)
		if p.next == off {
			cur := s.readSlot(off)
			p.next = cur.next
			s.writeSlot(prev, p)
			return
		}
		prev = p.next
	}
	corrupt("cursor-list", "cursor slot %d not found in registry during unlink", off)
}

// forEachCursor visits every slot on the cursor registry in list order,
// writing it back whenever fn reports a change. fn must not mutate the
// registry's own linkage (unlinkCursor/relocateCursor do that
// separately); it only rewrites navigation-state fields.
func (s *Store) forEachCursor(fn func(cur *slot) (changed bool)) {
	off := s.hdr.headCursor
	for off != 0 {
		cur := s.readSlot(off)
		next := cur.next
		if fn(cur) {
			s.writeSlot(off, cur)
		}
		off = next
	}
}

// cursorPivots returns this handle's current predecessor/successor
// offsets for key (spec.md §4.5), 0 if unset or walked off an end.
func (s *Store) cursorPivots(key int) (predOff, succOff int64) {
	cur := s.readSlot(s.cursorSlot)
	nc := cur.nodes[key]
	return nc.left, nc.right
}

// setCursorPivots persists this handle's predecessor/successor offsets
// for key.
func (s *Store) setCursorPivots(key int, predOff, succOff int64) {
	cur := s.readSlot(s.cursorSlot)
	cur.nodes[key].left = predOff
	cur.nodes[key].right = succOff
	s.writeSlot(s.cursorSlot, cur)
}
