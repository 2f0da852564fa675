// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// Sorted-order navigation (spec.md §4.5), grounded on
// avl_file_startge/avl_file_startlt/avl_file_next/avl_file_prev/
// avl_file_find: the threads let every one of these run in O(log n) to
// position plus O(1) amortized per step, with no recursion and no parent
// pointers, by reading the in-order successor/predecessor directly out of
// a node's own thread field rather than re-descending from the root.

func (s *Store) childLeft(off int64, key int) (int64, bool) {
	nc := s.getCell(off, key)
	if nc.left > 0 {
		return nc.left, true
	}
	return 0, false
}

func (s *Store) childRight(off int64, key int) (int64, bool) {
	nc := s.getCell(off, key)
	if nc.right > 0 {
		return nc.right, true
	}
	return 0, false
}

// successor returns the in-order successor of off under key, or 0 if off
// holds the largest key.
func (s *Store) successor(off int64, key int) int64 {
	nc := s.getCell(off, key)
	if nc.right > 0 {
		p := nc.right
		for {
			if l, ok := s.childLeft(p, key); ok {
				p = l
				continue
			}
			return p
		}
	}
	if nc.right < 0 {
		return -nc.right
	}
	return 0
}

// predecessor returns the in-order predecessor of off under key, or 0 if
// off holds the smallest key.
func (s *Store) predecessor(off int64, key int) int64 {
	nc := s.getCell(off, key)
	if nc.left > 0 {
		p := nc.left
		for {
			if r, ok := s.childRight(p, key); ok {
				p = r
				continue
			}
			return p
		}
	}
	if nc.left < 0 {
		return -nc.left
	}
	return 0
}

// findExact descends the key'th tree for a payload comparing equal to
// target, returning its offset, or ok=false.
func (s *Store) findExact(key int, target []byte) (int64, bool) {
	p := s.hdr.roots[key]
	for p != 0 {
		c := s.cmp(key, s.getPayload(p), target)
		if c == 0 {
			return p, true
		}
		if c < 0 {
			r, ok := s.childRight(p, key)
			if !ok {
				return 0, false
			}
			p = r
		} else {
			l, ok := s.childLeft(p, key)
			if !ok {
				return 0, false
			}
			p = l
		}
	}
	return 0, false
}

// startGE finds the smallest record whose key is >= target, or 0.
func (s *Store) startGE(key int, target []byte) int64 {
	p := s.hdr.roots[key]
	var best int64
	for p != 0 {
		c := s.cmp(key, s.getPayload(p), target)
		if c >= 0 {
			best = p
			if l, ok := s.childLeft(p, key); ok {
				p = l
			} else {
				p = 0
			}
		} else {
			if r, ok := s.childRight(p, key); ok {
				p = r
			} else {
				p = 0
			}
		}
	}
	return best
}

// startLT finds the largest record whose key is < target, or 0.
func (s *Store) startLT(key int, target []byte) int64 {
	p := s.hdr.roots[key]
	var best int64
	for p != 0 {
		c := s.cmp(key, s.getPayload(p), target)
		if c < 0 {
			best = p
			if r, ok := s.childRight(p, key); ok {
				p = r
			} else {
				p = 0
			}
		} else {
			if l, ok := s.childLeft(p, key); ok {
				p = l
			} else {
				p = 0
			}
		}
	}
	return best
}

// TreeCursor walks one key's sorted order, realizing spec.md §6's
// "start-at-≥"/"start-at-<" plus "next"/"prev". It holds no navigation
// state of its own (just which Store and key it addresses): the current
// position's predecessor/successor live in this opener's persisted
// cursor slot (cursor.go), so that a concurrent Delete or Squash can
// retarget them (delete.go's cursor fix-up, compact.go's relocation
// fix-up) instead of leaving a TreeCursor pointing at a vanished offset.
type TreeCursor struct {
	s   *Store
	key int
}

// Find returns the payload of the record whose key'th field compares
// equal to target (spec.md §6 "find"), positioning this opener's cursor
// on a match the same way start-at-≥ does, without advancing it.
func (s *Store) Find(key int, target []byte) ([]byte, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	var out []byte
	err := s.withOpLock(func() error {
		if err := s.acquireCursor(); err != nil {
			return err
		}
		if s.probeSaysAbsent(key, target) {
			return ErrNotFound
		}
		off, ok := s.findExact(key, target)
		if !ok {
			return ErrNotFound
		}
		out = append([]byte(nil), s.getPayload(off)...)
		s.setCursorPivots(key, s.predecessor(off, key), s.successor(off, key))
		return nil
	})
	return out, err
}

// StartAtGE positions this opener's cursor at the smallest record whose
// key'th field is >= target (spec.md §6 "start-at-≥"), returning its
// payload and persisting the predecessor/successor pivots Next/Prev
// consume. ok is false if no such record exists.
func (s *Store) StartAtGE(key int, target []byte) (c *TreeCursor, payload []byte, ok bool, err error) {
	if err := s.checkKey(key); err != nil {
		return nil, nil, false, err
	}
	c = &TreeCursor{s: s, key: key}
	err = s.withOpLock(func() error {
		if err := s.acquireCursor(); err != nil {
			return err
		}
		off := s.startGE(key, target)
		if off == 0 {
			s.setCursorPivots(key, 0, 0)
			return nil
		}
		payload = append([]byte(nil), s.getPayload(off)...)
		ok = true
		s.setCursorPivots(key, s.predecessor(off, key), s.successor(off, key))
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return c, payload, ok, nil
}

// StartAtLT positions this opener's cursor at the largest record whose
// key'th field is < target (spec.md §6 "start-at-<").
func (s *Store) StartAtLT(key int, target []byte) (c *TreeCursor, payload []byte, ok bool, err error) {
	if err := s.checkKey(key); err != nil {
		return nil, nil, false, err
	}
	c = &TreeCursor{s: s, key: key}
	err = s.withOpLock(func() error {
		if err := s.acquireCursor(); err != nil {
			return err
		}
		off := s.startLT(key, target)
		if off == 0 {
			s.setCursorPivots(key, 0, 0)
			return nil
		}
		payload = append([]byte(nil), s.getPayload(off)...)
		ok = true
		s.setCursorPivots(key, s.predecessor(off, key), s.successor(off, key))
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return c, payload, ok, nil
}

// Next advances the cursor to the next record in ascending key order
// (spec.md §6 "next"): it reads and consumes the persisted successor
// pivot, then re-derives both pivots around the new position so a
// subsequent Prev reverses it correctly.
func (c *TreeCursor) Next() (payload []byte, ok bool) {
	err := c.s.withOpLock(func() error {
		if err := c.s.acquireCursor(); err != nil {
			return err
		}
		_, next := c.s.cursorPivots(c.key)
		if next == 0 {
			return nil
		}
		payload = append([]byte(nil), c.s.getPayload(next)...)
		ok = true
		c.s.setCursorPivots(c.key, c.s.predecessor(next, c.key), c.s.successor(next, c.key))
		return nil
	})
	if err != nil {
		return nil, false
	}
	return payload, ok
}

// Prev moves the cursor to the previous record in ascending key order
// (spec.md §6 "prev"), symmetric with Next.
func (c *TreeCursor) Prev() (payload []byte, ok bool) {
	err := c.s.withOpLock(func() error {
		if err := c.s.acquireCursor(); err != nil {
			return err
		}
		prev, _ := c.s.cursorPivots(c.key)
		if prev == 0 {
			return nil
		}
		payload = append([]byte(nil), c.s.getPayload(prev)...)
		ok = true
		c.s.setCursorPivots(c.key, c.s.predecessor(prev, c.key), c.s.successor(prev, c.key))
		return nil
	})
	if err != nil {
		return nil, false
	}
	return payload, ok
}

// checkKey validates a caller-supplied key index (spec.md §7.1: an
// out-of-range key index is a caller error, not corruption).
func (s *Store) checkKey(key int) error {
	if key < 0 || int32(key) >= s.geom.nKeys {
		return &ErrInvalid{Op: "key", Msg: "key index out of range"}
	}
	return nil
}
