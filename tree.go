// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// This file implements non-recursive threaded AVL insertion (spec.md
// §4.3), following the structure of avl_file_insert in
// original_source/avl_file.c: descend tracking an in-memory ancestor
// stack (spec.md §9 "bounded-depth traversal stack"), attach the new
// node with its two thread pointers set from the attachment point, then
// walk the ancestor stack back up adjusting balance factors and rotating
// at most once per insert.
//
// Thread encoding (spec.md §9): a node's left/right field is a real child
// offset when positive, a thread to the in-order predecessor/successor
// when negative (magnitude is the offset), and 0 at the very ends of the
// sequence. balance is the conventional height(right)-height(left), live
// in {-1,0,1} at rest and transiently {-2,2} mid-rebalance.

// Insert adds a new record with the given payload, linking it into the
// sequential list and every key's tree (spec.md §6 "insert"). Duplicate
// key values are permitted; payloads that compare equal to an existing
// record's key are simply inserted alongside it.
func (s *Store) Insert(payload []byte) error {
	if int32(len(payload)) != s.geom.payloadLen {
		return &ErrInvalid{Op: "insert", Msg: "payload length mismatch"}
	}
	return s.withOpLock(func() error {
		if s.hdr.nLive+1 < 0 {
			return &ErrInvalid{Op: "insert", Msg: "n_live overflow"}
		}
		off := s.allocSlot()
		sl := newSlot(s.geom)
		sl.payload = append([]byte(nil), payload...)
		s.writeSlot(off, sl)
		s.seqInsertHead(off, sl)
		s.writeSlot(off, sl)
		for k := 0; k < int(s.geom.nKeys); k++ {
			s.treeInsert(k, off)
		}
		s.hdr.nLive++
		s.updateProbes(off)
		return nil
	})
}

// getCell reads one key's node cell out of the slot at off.
func (s *Store) getCell(off int64, key int) nodeCell {
	sl := s.readSlot(off)
	return sl.nodes[key]
}

// setCell writes one key's node cell back into the slot at off, leaving
// every other field (other keys' cells, list links, payload) untouched.
func (s *Store) setCell(off int64, key int, nc nodeCell) {
	sl := s.readSlot(off)
	sl.nodes[key] = nc
	s.writeSlot(off, sl)
}

func (s *Store) getPayload(off int64) []byte {
	return s.readSlot(off).payload
}

// treeInsert links off into the key'th tree. The slot at off must already
// exist (written by the caller); treeInsert overwrites its node[key]
// left/right/balance and rewrites the attachment point's cell and
// ancestors' balances, rotating as needed.
func (s *Store) treeInsert(key int, off int64) {
	root := s.hdr.roots[key]
	if root == 0 {
		s.setCell(off, key, nodeCell{balance: 0, left: 0, right: 0})
		s.hdr.roots[key] = off
		return
	}

	payload := s.getPayload(off)

	var ancestors []int64
	var dirs []int8 // -1 went left, +1 went right, per ancestor

	p := root
	for {
		nc := s.getCell(p, key)
		c := s.cmp(key, payload, s.getPayload(p))
		if c < 0 {
			ancestors = append(ancestors, p)
			dirs = append(dirs, -1)
			if nc.left > 0 {
				p = nc.left
				continue
			}
			// attach as p's left child
			s.setCell(off, key, nodeCell{balance: 0, left: nc.left, right: -p})
			nc.left = off
			s.setCell(p, key, nc)
			break
		}
		ancestors = append(ancestors, p)
		dirs = append(dirs, 1)
		if nc.right > 0 {
			p = nc.right
			continue
		}
		// attach as p's right child
		s.setCell(off, key, nodeCell{balance: 0, left: -p, right: nc.right})
		nc.right = off
		s.setCell(p, key, nc)
		break
	}

	s.rebalanceAfterInsert(key, ancestors, dirs)
}

// rebalanceAfterInsert walks the ancestor stack from the newly attached
// leaf's parent up to the root, adjusting balance factors and stopping as
// soon as either a subtree's height turns out not to have grown (balance
// becomes 0) or a rotation has absorbed the growth.
func (s *Store) rebalanceAfterInsert(key int, ancestors []int64, dirs []int8) {
	for i := len(ancestors) - 1; i >= 0; i-- {
		node := ancestors[i]
		nc := s.getCell(node, key)
		if dirs[i] < 0 {
			nc.balance--
		} else {
			nc.balance++
		}
		switch {
		case nc.balance == 0:
			s.setCell(node, key, nc)
			return
		case nc.balance == -1 || nc.balance == 1:
			s.setCell(node, key, nc)
			continue
		default:
			newRoot, _ := s.rebalance(key, node, nc)
			s.relink(key, ancestors, dirs, i, newRoot)
			return
		}
	}
}

// relink attaches newRoot where ancestors[i] used to be: into the header
// root slot if i is the top of the stack, or into ancestors[i-1]'s
// appropriate child field otherwise.
func (s *Store) relink(key int, ancestors []int64, dirs []int8, i int, newRoot int64) {
	if i == 0 {
		s.hdr.roots[key] = newRoot
		return
	}
	parent := ancestors[i-1]
	pc := s.getCell(parent, key)
	if dirs[i-1] < 0 {
		pc.left = newRoot
	} else {
		pc.right = newRoot
	}
	s.setCell(parent, key, pc)
}

// rebalance restores AVL balance at node (whose balance factor has just
// become -2 or +2), performing a single or double rotation as dictated by
// the heavy child's own balance. It returns the offset of the subtree's
// new root and whether the subtree's height is unchanged from before the
// deletion/insertion that triggered the imbalance — only meaningful to
// delete's rebalance-propagation (a double rotation always reduces
// height by one; a single rotation leaves height unchanged exactly when
// the heavy child itself was perfectly balanced, which can only happen
// during delete's cascading rebalance, never during insert).
func (s *Store) rebalance(key int, node int64, nc nodeCell) (newRoot int64, heightSame bool) {
	if nc.balance == -2 {
		b := nc.left
		bc := s.getCell(b, key)
		if bc.balance <= 0 {
			same := bc.balance == 0
			return s.rotateRight(key, node, nc, b, bc), same
		}
		return s.rotateLeftRight(key, node, nc, b, bc), false
	}
	b := nc.right
	bc := s.getCell(b, key)
	if bc.balance >= 0 {
		same := bc.balance == 0
		return s.rotateLeft(key, node, nc, b, bc), same
	}
	return s.rotateRightLeft(key, node, nc, b, bc), false
}

// rotateRight performs a single right rotation: a (imbalanced, left-heavy)
// pivots down, b (a's left child) becomes the new subtree root.
func (s *Store) rotateRight(key int, a int64, ac nodeCell, b int64, bc nodeCell) int64 {
	if bc.right > 0 {
		ac.left = bc.right
	} else {
		ac.left = -b
	}
	bc.right = a
	if bc.balance == 0 {
		ac.balance = -1
		bc.balance = 1
	} else {
		ac.balance = 0
		bc.balance = 0
	}
	s.setCell(a, key, ac)
	s.setCell(b, key, bc)
	return b
}

// rotateLeft performs a single left rotation, the mirror of rotateRight.
func (s *Store) rotateLeft(key int, a int64, ac nodeCell, b int64, bc nodeCell) int64 {
	if bc.left > 0 {
		ac.right = bc.left
	} else {
		ac.right = -b
	}
	bc.left = a
	if bc.balance == 0 {
		ac.balance = 1
		bc.balance = -1
	} else {
		ac.balance = 0
		bc.balance = 0
	}
	s.setCell(a, key, ac)
	s.setCell(b, key, bc)
	return b
}

// rotateLeftRight performs a double rotation for the left-right-heavy
// case: a is left-heavy (balance -2) but its left child b is right-heavy
// (balance +1). c = b's right child becomes the new subtree root.
func (s *Store) rotateLeftRight(key int, a int64, ac nodeCell, b int64, bc nodeCell) int64 {
	c := bc.right
	cc := s.getCell(c, key)
	cBalance := cc.balance

	if cc.left > 0 {
		bc.right = cc.left
	} else {
		bc.right = -c
	}
	if cc.right > 0 {
		ac.left = cc.right
	} else {
		ac.left = -c
	}
	cc.left = b
	cc.right = a

	switch cBalance {
	case 0:
		ac.balance = 0
		bc.balance = 0
	case -1:
		ac.balance = 1
		bc.balance = 0
	default: // +1
		ac.balance = 0
		bc.balance = -1
	}
	cc.balance = 0

	s.setCell(a, key, ac)
	s.setCell(b, key, bc)
	s.setCell(c, key, cc)
	return c
}

// rotateRightLeft performs a double rotation for the right-left-heavy
// case, the mirror of rotateLeftRight.
func (s *Store) rotateRightLeft(key int, a int64, ac nodeCell, b int64, bc nodeCell) int64 {
	c := bc.left
	cc := s.getCell(c, key)
	cBalance := cc.balance

	if cc.right > 0 {
		bc.left = cc.right
	} else {
		bc.left = -c
	}
	if cc.left > 0 {
		ac.right = cc.left
	} else {
		ac.right = -c
	}
	cc.right = b
	cc.left = a

	switch cBalance {
	case 0:
		ac.balance = 0
		bc.balance = 0
	case 1:
		ac.balance = -1
		bc.balance = 0
	default: // -1
		ac.balance = 0
		bc.balance = 1
	}
	cc.balance = 0

	s.setCell(a, key, ac)
	s.setCell(b, key, bc)
	s.setCell(c, key, cc)
	return c
}
