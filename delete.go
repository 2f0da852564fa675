// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import "bytes"

// This file implements spec.md §4.4 deletion: duplicate-tolerant location
// of the exact record to remove (since a key may compare equal across
// several records, only one of which has the caller's full payload
// bytes), threaded removal from every key's tree, and rebalancing.
//
// Locating the target descends key 0's tree (or, when n_keys == 0 and
// there is no tree to search, scans the sequential list linearly)
// pushing every node whose key-0 field compares equal onto a stack, then
// backtracks checking full-payload-byte equality — mirroring
// avl_file_delete's duplicate handling in the original C implementation.
//
// Once the slot is located, it is removed from each of the n_keys trees
// independently. Within a single key's tree the slot is relocated by
// descending with the same left-on-less/right-on-not-less tie-break rule
// used by insertion (tree.go), which retraces the slot's own insertion
// path deterministically even among duplicates.

func (s *Store) locateByPayload(payload []byte) (int64, bool) {
	if s.geom.nKeys == 0 {
		off := s.hdr.headSeq
		for off != 0 {
			sl := s.readSlot(off)
			if bytes.Equal(sl.payload, payload) {
				return off, true
			}
			off = sl.next
		}
		return 0, false
	}

	var equal []int64
	p := s.hdr.roots[0]
	for p != 0 {
		c := s.cmp(0, payload, s.getPayload(p))
		if c == 0 {
			equal = append(equal, p)
		}
		if c < 0 {
			if l, ok := s.childLeft(p, 0); ok {
				p = l
			} else {
				p = 0
			}
		} else {
			if r, ok := s.childRight(p, 0); ok {
				p = r
			} else {
				p = 0
			}
		}
	}
	for i := len(equal) - 1; i >= 0; i-- {
		off := equal[i]
		if bytes.Equal(s.getPayload(off), payload) {
			return off, true
		}
	}
	return 0, false
}

// locateInTree retraces off's insertion path within the key'th tree,
// using the same tie-break rule treeInsert used (less goes left,
// not-less goes right), which deterministically reaches off even when
// other records share its key value.
func (s *Store) locateInTree(key int, off int64) (ancestors []int64, dirs []int8) {
	target := s.getPayload(off)
	p := s.hdr.roots[key]
	for p != off {
		if p == 0 {
			corrupt("delete-not-found", "offset %d not present in tree for key %d", off, key)
		}
		c := s.cmp(key, target, s.getPayload(p))
		ancestors = append(ancestors, p)
		if c < 0 {
			dirs = append(dirs, -1)
			if l, ok := s.childLeft(p, key); ok {
				p = l
			} else {
				p = 0
			}
		} else {
			dirs = append(dirs, 1)
			if r, ok := s.childRight(p, key); ok {
				p = r
			} else {
				p = 0
			}
		}
	}
	return ancestors, dirs
}

// removeRightmost deletes the rightmost node of the subtree rooted at
// node from the key'th tree and rebalances it. It returns the value the
// caller should store into whatever field pointed at node (a real offset
// if a subtree remains, otherwise the removed node's own left thread, or
// a thread to the removed node when its parent is the one relinking it,
// since the removed node moves up to take the deleted slot's place), the
// offset of the removed node with its pre-removal cell (the caller
// relinks it elsewhere), and whether the subtree's height decreased.
//
// This is the one place deletion recurses rather than using an explicit
// stack (contrast tree.go/locateInTree's iterative descent): the
// recursion depth is bounded by the tree's height, identical to the
// bound spec.md §9 places on the explicit traversal stack elsewhere.
func (s *Store) removeRightmost(key int, node int64) (repr int64, removed int64, removedCell nodeCell, heightDecreased bool) {
	nc := s.getCell(node, key)
	if nc.right > 0 {
		childRepr, rem, remCell, dec := s.removeRightmost(key, nc.right)
		if rem == nc.right && remCell.left <= 0 {
			// rem was a leaf: node becomes this subtree's rightmost, and
			// its successor is rem itself once rem replaces the deleted slot.
			childRepr = -rem
		}
		nc.right = childRepr
		if !dec {
			s.setCell(node, key, nc)
			return node, rem, remCell, false
		}
		nc.balance--
		switch nc.balance {
		case -1, 1:
			s.setCell(node, key, nc)
			return node, rem, remCell, false
		case 0:
			s.setCell(node, key, nc)
			return node, rem, remCell, true
		default:
			newRoot, same := s.rebalance(key, node, nc)
			return newRoot, rem, remCell, !same
		}
	}
	// Any real left subtree is promoted as is; its rightmost node's right
	// thread already names node, which stays its successor after node
	// moves up.
	return nc.left, node, nc, true
}

func (s *Store) rightmostReal(key int, start int64) int64 {
	p := start
	for {
		pc := s.getCell(p, key)
		if pc.right > 0 {
			p = pc.right
			continue
		}
		return p
	}
}

func (s *Store) leftmostReal(key int, start int64) int64 {
	p := start
	for {
		pc := s.getCell(p, key)
		if pc.left > 0 {
			p = pc.left
			continue
		}
		return p
	}
}

// spliceLeafOrOneChild handles removing a node with at most one real
// child, threading the extremal node of that child's subtree (if any)
// past the removed node. It always reduces height by one.
func (s *Store) spliceLeafOrOneChild(key int, nc nodeCell) int64 {
	if nc.left > 0 {
		rr := s.rightmostReal(key, nc.left)
		rrc := s.getCell(rr, key)
		rrc.right = nc.right
		s.setCell(rr, key, rrc)
		return nc.left
	}
	if nc.right > 0 {
		ll := s.leftmostReal(key, nc.right)
		llc := s.getCell(ll, key)
		llc.left = nc.left
		s.setCell(ll, key, llc)
		return nc.right
	}
	return nc.left
}

// treeDeleteOffset unlinks off from the key'th tree and rebalances it.
func (s *Store) treeDeleteOffset(key int, off int64) {
	ancestors, dirs := s.locateInTree(key, off)
	nc := s.getCell(off, key)

	var newRoot int64
	var heightSame bool

	if nc.left > 0 && nc.right > 0 {
		newLeftRepr, pred, _, leftDec := s.removeRightmost(key, nc.left)

		// pred becomes off's immediate predecessor overall, and was the
		// in-order predecessor of whatever off's right subtree's leftmost
		// node (q) is; q's predecessor thread must now skip off.
		q := s.leftmostReal(key, nc.right)
		qc := s.getCell(q, key)
		qc.left = -pred
		s.setCell(q, key, qc)

		newCell := nodeCell{left: newLeftRepr, right: nc.right, balance: nc.balance}
		if leftDec {
			newCell.balance++
		}

		switch {
		case !leftDec:
			s.setCell(pred, key, newCell)
			newRoot, heightSame = pred, true
		case newCell.balance == -1 || newCell.balance == 1:
			s.setCell(pred, key, newCell)
			newRoot, heightSame = pred, true
		case newCell.balance == 0:
			s.setCell(pred, key, newCell)
			newRoot, heightSame = pred, false
		default:
			newRoot, heightSame = s.rebalance(key, pred, newCell)
		}
	} else {
		newRoot = s.spliceLeafOrOneChild(key, nc)
		if newRoot <= 0 && len(dirs) > 0 && dirs[len(dirs)-1] > 0 {
			// A removed leaf that was a right child leaves its parent
			// threaded to its successor, not its predecessor.
			newRoot = nc.right
		}
		heightSame = false
	}

	if len(ancestors) == 0 {
		s.hdr.roots[key] = newRoot
		return
	}
	s.relink(key, ancestors, dirs, len(ancestors), newRoot)
	if heightSame {
		return
	}
	s.rebalanceAfterDelete(key, ancestors, dirs, len(ancestors)-1)
}

// rebalanceAfterDelete continues the balance-factor update from index
// start in the ancestor stack up to the root, the mirror of
// rebalanceAfterInsert but with the opposite stopping rule: propagation
// continues while a subtree's height keeps shrinking (balance reaches 0)
// and stops as soon as a subtree absorbs the shrink without changing
// height (balance reaches ±1, or a rotation restores the original
// height).
func (s *Store) rebalanceAfterDelete(key int, ancestors []int64, dirs []int8, start int) {
	for i := start; i >= 0; i-- {
		node := ancestors[i]
		nc := s.getCell(node, key)
		if dirs[i] < 0 {
			nc.balance++
		} else {
			nc.balance--
		}
		switch {
		case nc.balance == -1 || nc.balance == 1:
			s.setCell(node, key, nc)
			return
		case nc.balance == 0:
			s.setCell(node, key, nc)
			continue
		default:
			newRoot, same := s.rebalance(key, node, nc)
			s.relink(key, ancestors, dirs, i, newRoot)
			if same {
				return
			}
			continue
		}
	}
}

// fixupCursorsBeforeDelete implements spec.md §4.4's cursor fix-up: for
// every cursor slot and every key k, a persisted pivot or sequential
// position that names the about-to-be-removed offset is retargeted to
// that offset's predecessor/successor/sequential-next, computed from its
// still-intact threads before treeDeleteOffset/seqUnlink touch anything.
// Run this first, or a cursor's stale pivot would dereference a slot
// whose node cells have already been overwritten with free/tombstone
// data, producing the wrong neighbor or silently stopping the walk.
func (s *Store) fixupCursorsBeforeDelete(off int64, seqNext int64, preds, succs []int64) {
	s.forEachCursor(func(cur *slot) bool {
		changed := false
		for k := range cur.nodes {
			if cur.nodes[k].left == off {
				cur.nodes[k].left = preds[k]
				changed = true
			}
			if cur.nodes[k].right == off {
				cur.nodes[k].right = succs[k]
				changed = true
			}
		}
		if cur.prev == off {
			cur.prev = seqNext
			changed = true
		}
		return changed
	})
}

// Delete removes the record whose full payload equals payload from every
// key's tree and the sequential list, and returns the slot to the free
// list (spec.md §6 "delete"). It reports ErrNotFound if no record
// matches exactly.
func (s *Store) Delete(payload []byte) error {
	return s.withOpLock(func() error {
		off, ok := s.locateByPayload(payload)
		if !ok {
			return ErrNotFound
		}
		sl := s.readSlot(off)

		preds := make([]int64, s.geom.nKeys)
		succs := make([]int64, s.geom.nKeys)
		for k := 0; k < int(s.geom.nKeys); k++ {
			preds[k] = s.predecessor(off, k)
			succs[k] = s.successor(off, k)
		}
		s.fixupCursorsBeforeDelete(off, sl.next, preds, succs)

		for k := 0; k < int(s.geom.nKeys); k++ {
			s.treeDeleteOffset(k, off)
		}
		s.seqUnlink(off, sl)
		s.freeSlot(off)
		s.hdr.nLive--
		// Existence probes are never pruned on delete: a stale positive is
		// harmless since Find always confirms with a real tree descent,
		// and probe.go rebuilds from scratch on the next Open.
		return nil
	})
}

// Update replaces the record matching oldPayload with newPayload in
// place, unlinking it from every key's tree and the sequential list and
// relinking the same slot under the new payload (spec.md §6 "update"):
// since any indexed field may move, there is no cheaper correct rewrite
// than a full unlink/relink, but reusing the slot avoids a free/allocate
// round trip. Unlike Delete, this needs no cursor fix-up: off itself is
// never freed, so any cursor pivot naming it still names a live slot
// once the reinsert below completes, just with new payload bytes.
func (s *Store) Update(oldPayload, newPayload []byte) error {
	if int32(len(newPayload)) != s.geom.payloadLen {
		return &ErrInvalid{Op: "update", Msg: "payload length mismatch"}
	}
	return s.withOpLock(func() error {
		off, ok := s.locateByPayload(oldPayload)
		if !ok {
			return ErrNotFound
		}
		sl := s.readSlot(off)
		for k := 0; k < int(s.geom.nKeys); k++ {
			s.treeDeleteOffset(k, off)
		}
		s.seqUnlink(off, sl)

		sl.payload = append([]byte(nil), newPayload...)
		s.writeSlot(off, sl)
		s.seqInsertHead(off, sl)
		s.writeSlot(off, sl)
		for k := 0; k < int(s.geom.nKeys); k++ {
			s.treeInsert(k, off)
		}
		s.updateProbes(off)
		return nil
	})
}
