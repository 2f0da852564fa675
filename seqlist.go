// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// Sequential (insertion-order) list management (spec.md §3/§4.1). Every
// live tree-node slot is also linked into one doubly-linked list via its
// prev/next fields, in insertion order, independent of any key's sort
// order. header.headSeq is the most-recently-inserted slot.

func (s *Store) seqInsertHead(off int64, sl *slot) {
	sl.prev = 0
	sl.next = s.hdr.headSeq
	if s.hdr.headSeq != 0 {
		head := s.readSlot(s.hdr.headSeq)
		head.prev = off
		s.writeSlot(s.hdr.headSeq, head)
	}
	s.hdr.headSeq = off
}

// seqUnlink removes off from the sequential list using sl's own prev/next
// (the caller must pass the slot's in-memory contents before it's
// overwritten, since once off is freed its links are gone).
func (s *Store) seqUnlink(off int64, sl *slot) {
	if sl.prev != 0 {
		p := s.readSlot(sl.prev)
		p.next = sl.next
		s.writeSlot(sl.prev, p)
	} else if s.hdr.headSeq == off {
		s.hdr.headSeq = sl.next
	}
	if sl.next != 0 {
		n := s.readSlot(sl.next)
		n.prev = sl.prev
		s.writeSlot(sl.next, n)
	}
}

// SeqCursor walks the sequential list starting at the most recently
// inserted record, realizing spec.md §6's "start-sequential"/
// "read-sequential" pair as a single stateful iterator instead of two
// calls, since Go has no output-parameter convention for "give me the
// next offset." It holds no state of its own: the scan position is this
// opener's persisted cursor slot's prev field (spec.md §3, §4.5), so
// Delete's cursor fix-up (delete.go) and Squash's relocation fix-up
// (compact.go) can retarget it like any other cursor state.
type SeqCursor struct {
	s *Store
}

// StartSequential returns an iterator positioned before the
// most-recently-inserted record (spec.md §6 "start-sequential"), by
// setting this opener's cursor slot's prev field to header.headSeq.
func (s *Store) StartSequential() (*SeqCursor, error) {
	err := s.withOpLock(func() error {
		if err := s.acquireCursor(); err != nil {
			return err
		}
		cur := s.readSlot(s.cursorSlot)
		cur.prev = s.hdr.headSeq
		s.writeSlot(s.cursorSlot, cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SeqCursor{s: s}, nil
}

// Next advances the cursor and reports the next record's payload in
// insertion order, most recent first, or ok=false once exhausted
// (spec.md §6 "read-sequential").
func (c *SeqCursor) Next() (payload []byte, ok bool) {
	err := c.s.withOpLock(func() error {
		if err := c.s.acquireCursor(); err != nil {
			return err
		}
		cur := c.s.readSlot(c.s.cursorSlot)
		if cur.prev == 0 {
			return nil
		}
		sl := c.s.readSlot(cur.prev)
		payload = append([]byte(nil), sl.payload...)
		ok = true
		cur.prev = sl.next
		c.s.writeSlot(c.s.cursorSlot, cur)
		return nil
	})
	if err != nil {
		return nil, false
	}
	return payload, ok
}
