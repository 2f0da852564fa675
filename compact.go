// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// Squash implements spec.md §4.7, the compactor. Phase A reaps cursor
// slots abandoned by a dead opener (detected by winning a non-blocking
// lock probe on a slot nobody else holds). Phase B then repeatedly
// inspects the highest-offset slot and, unless it is already free,
// relocates it into the lowest-offset free slot so the file can be
// truncated — mirroring avl_file_squash's last-record-into-first-hole
// shrink loop.
func (s *Store) Squash() error {
	return s.withOpLock(func() error {
		s.reapAbandonedCursors()
		for {
			if s.eof <= s.hdr.size() {
				return nil
			}
			top := s.eof - int64(s.geom.slotLen)
			topSlot := s.readSlot(top)

			switch {
			case topSlot.isFree():
				s.unlinkFree(top)
				s.shrinkTo(top)

			case topSlot.isCursor():
				if top == s.cursorSlot {
					low, ok := s.popFreeBelow(top)
					if !ok {
						return nil
					}
					if err := s.lock.unlockRange(top, 1); err != nil {
						return err
					}
					s.relocateCursor(top, low)
					locked, err := s.lock.tryLockRange(low, 1)
					if err != nil {
						return err
					}
					if !locked {
						corrupt("cursor-lock", "could not relock own cursor slot at new offset %d", low)
					}
					s.cursorSlot = low
					s.shrinkTo(top)
					continue
				}
				locked, err := s.lock.tryLockRange(top, 1)
				if err != nil {
					return err
				}
				if !locked {
					// Still held by a live opener: nothing past this
					// offset can be reclaimed this pass.
					return nil
				}
				s.unlinkCursor(top)
				if err := s.lock.unlockRange(top, 1); err != nil {
					return err
				}
				s.shrinkTo(top)

			default:
				low, ok := s.popFreeBelow(top)
				if !ok {
					return nil
				}
				s.relocateTreeNode(top, low)
				s.shrinkTo(top)
			}
		}
	})
}

// reapAbandonedCursors walks the cursor registry once, non-blockingly
// probing every slot that isn't this handle's own; a successful probe
// means nobody else holds the lock, so the opener that created it is
// gone and the slot is freed.
func (s *Store) reapAbandonedCursors() {
	off := s.hdr.headCursor
	for off != 0 {
		cur := s.readSlot(off)
		next := cur.next
		if off != s.cursorSlot {
			locked, err := s.lock.tryLockRange(off, 1)
			if err == nil && locked {
				s.unlinkCursor(off)
				s.freeSlot(off)
				s.lock.unlockRange(off, 1)
			}
		}
		off = next
	}
}

// unlinkFree removes a specific offset from the (singly linked) free
// list, wherever it happens to sit in the chain.
func (s *Store) unlinkFree(off int64) {
	if s.hdr.headFree == off {
		fr := s.readSlot(off)
		s.hdr.headFree = s.freeListNext(fr)
		return
	}
	prev := s.hdr.headFree
	for prev != 0 {
		pfr := s.readSlot(prev)
		next := s.freeListNext(pfr)
		if next == off {
			ofr := s.readSlot(off)
			if len(pfr.nodes) > 0 {
				pfr.nodes[0].left = s.freeListNext(ofr)
			} else {
				pfr.next = s.freeListNext(ofr)
			}
			s.writeSlot(prev, pfr)
			return
		}
		prev = next
	}
	corrupt("free-list", "offset %d not found in free list during unlink", off)
}

// popFreeBelow removes and returns the lowest-offset free slot strictly
// below limit, or ok=false if none exists.
func (s *Store) popFreeBelow(limit int64) (off int64, ok bool) {
	best := int64(-1)
	p := s.hdr.headFree
	for p != 0 {
		if p < limit && (best == -1 || p < best) {
			best = p
		}
		fr := s.readSlot(p)
		p = s.freeListNext(fr)
	}
	if best == -1 {
		return 0, false
	}
	s.unlinkFree(best)
	return best, true
}

// relocateTreeNode moves the live record at top down to low, fixing
// every tree's parent link and the two thread pointers that reference
// top (its in-order predecessor's right thread and successor's left
// thread), its sequential-list neighbors, and any cursor referencing top
// (spec.md §4.7 Phase B step 4), then writes top's unmodified content to
// low. Skipping the cursor fix-up would leave a cursor's pivot or
// sequential field pointing at an offset past the shrunk eof watermark
// the next time it navigates.
func (s *Store) relocateTreeNode(top, low int64) {
	sl := s.readSlot(top)

	for k := 0; k < int(s.geom.nKeys); k++ {
		ancestors, dirs := s.locateInTree(k, top)
		pred := s.predecessor(top, k)
		succ := s.successor(top, k)

		if len(ancestors) == 0 {
			s.hdr.roots[k] = low
		} else {
			s.relink(k, ancestors, dirs, len(ancestors), low)
		}
		if pred != 0 {
			if pc := s.getCell(pred, k); pc.right == -top {
				pc.right = -low
				s.setCell(pred, k, pc)
			}
		}
		if succ != 0 {
			if sc := s.getCell(succ, k); sc.left == -top {
				sc.left = -low
				s.setCell(succ, k, sc)
			}
		}
	}

	if sl.prev != 0 {
		p := s.readSlot(sl.prev)
		p.next = low
		s.writeSlot(sl.prev, p)
	} else if s.hdr.headSeq == top {
		s.hdr.headSeq = low
	}
	if sl.next != 0 {
		n := s.readSlot(sl.next)
		n.prev = low
		s.writeSlot(sl.next, n)
	}

	s.fixupCursorsOnRelocate(top, low)

	s.writeSlot(low, sl)
}

// fixupCursorsOnRelocate rewrites every cursor's per-key pivots and
// sequential position that reference top to low (spec.md §4.7 Phase B
// step 4), mirroring fixupCursorsBeforeDelete's walk but with a plain
// substitution instead of a predecessor/successor recomputation, since
// top's record itself is not being removed, only moved.
func (s *Store) fixupCursorsOnRelocate(top, low int64) {
	s.forEachCursor(func(cur *slot) bool {
		changed := false
		for k := range cur.nodes {
			if cur.nodes[k].left == top {
				cur.nodes[k].left = low
				changed = true
			}
			if cur.nodes[k].right == top {
				cur.nodes[k].right = low
				changed = true
			}
		}
		if cur.prev == top {
			cur.prev = low
			changed = true
		}
		return changed
	})
}

// relocateCursor moves a cursor slot (one this handle doesn't itself
// own and has already confirmed is abandoned and reaped, or that this
// handle owns and has already unlocked) down to low and fixes the
// registry's singly-linked list.
func (s *Store) relocateCursor(top, low int64) {
	cur := s.readSlot(top)
	if s.hdr.headCursor == top {
		s.hdr.headCursor = low
	} else {
		prev := s.hdr.headCursor
		for prev != 0 {
			p := s.readSlot(prev)
			if p.next == top {
				p.next = low
				s.writeSlot(prev, p)
				break
			}
			prev = p.next
		}
	}
	s.writeSlot(low, cur)
}

func (s *Store) shrinkTo(top int64) {
	s.eof = top
	if err := s.f.Truncate(top); err != nil {
		corrupt("truncate", "truncating to %d: %v", top, err)
	}
}
