// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// Tag bytes overloaded onto the per-key balance byte for slots that are
// not live tree nodes (spec.md §3 Slot, §9 "Balance byte overloading").
// A live node's balance is always in {-1, 0, +1} at rest, or momentarily
// {-2, +2} mid-rebalance, so these values can never collide with a real
// balance.
const (
	tagCursor int8 = 0x20
	tagFree   int8 = 0x40
)

// nodeCell is one key's worth of threaded-AVL linkage within a slot.
//
// left/right follow spec.md §9: positive is a child offset, negative is a
// thread whose magnitude is the predecessor (left) or successor (right)
// offset, and zero is end-of-thread.
//
// On a cursor slot (tagCursor) the same two fields carry different
// meaning (spec.md §3, §4.5): left[k]/right[k] hold the offsets of the
// predecessor/successor of that cursor's current position under key k,
// plain offsets rather than thread-encoded. Both are zero once the
// cursor has never been positioned, or has walked off an end, for that
// key.
type nodeCell struct {
	balance int8
	left    int64
	right   int64
}

// slot is the uniform on-disk unit described in spec.md §3: one node[k]
// per key, a pair of sequential/list links, and a payload byte area. It
// plays one of three roles (live tree node, cursor, free) distinguished
// by node[*].balance.
//
// prev/next thread the sequential (insertion-order) list on a tree-node
// slot. On a cursor slot they are repurposed (spec.md §3): prev holds the
// cursor's own sequential-scan position (spec.md §6 "start-sequential"/
// "read-sequential"), and next links the cursor registry
// (header.headCursor), the same role node[0].left plays for the free
// list (alloc.go) — cursor and free slots never coexist at an offset, so
// reusing distinct fields for the two registries avoids a collision
// without needing a node cell at all, which matters for n_keys == 0
// stores that have none.
type slot struct {
	nodes   []nodeCell // len == geometry.nKeys
	prev    int64
	next    int64
	payload []byte // len == geometry.payloadLen
}

func newSlot(g geometry) *slot {
	return &slot{
		nodes:   make([]nodeCell, g.nKeys),
		payload: make([]byte, g.payloadLen),
	}
}

func (s *slot) isFree() bool {
	return s.tag() == tagFree
}

func (s *slot) isCursor() bool {
	return s.tag() == tagCursor
}

// tag reports the slot's role byte. By invariant 5/4 of spec.md §3, all
// nodes[*].balance agree for non-tree slots, so nodes[0] is representative
// whenever nKeys > 0. A zero-key store (n_keys = 0, a legal but degenerate
// configuration per spec.md §4.4) has no node cells to tag at all; such
// stores carry role information purely through list membership, and
// isFree/isCursor are meaningless for them (callers must not call them).
func (s *slot) tag() int8 {
	if len(s.nodes) == 0 {
		return 0
	}
	return s.nodes[0].balance
}

func (s *slot) markFree() {
	for i := range s.nodes {
		s.nodes[i] = nodeCell{balance: tagFree}
	}
}

func (s *slot) markCursor() {
	for i := range s.nodes {
		s.nodes[i] = nodeCell{balance: tagCursor}
	}
}

func (s *slot) encode(g geometry) []byte {
	buf := make([]byte, g.slotLen)
	off := 0
	for _, n := range s.nodes {
		buf[off] = byte(n.balance)
		byteOrder.PutUint64(buf[off+1:off+9], uint64(n.left))
		byteOrder.PutUint64(buf[off+9:off+17], uint64(n.right))
		off += nodeCellSize
	}
	byteOrder.PutUint64(buf[off:off+8], uint64(s.prev))
	byteOrder.PutUint64(buf[off+8:off+16], uint64(s.next))
	off += listLinkSize
	copy(buf[off:off+int(g.payloadLen)], s.payload)
	return buf
}

func decodeSlot(buf []byte, g geometry) *slot {
	if int32(len(buf)) != g.slotLen {
		corrupt("slot-size", "decoded buffer length %d != slot_len %d", len(buf), g.slotLen)
	}
	s := newSlot(g)
	off := 0
	for i := range s.nodes {
		s.nodes[i] = nodeCell{
			balance: int8(buf[off]),
			left:    int64(byteOrder.Uint64(buf[off+1 : off+9])),
			right:   int64(byteOrder.Uint64(buf[off+9 : off+17])),
		}
		off += nodeCellSize
	}
	s.prev = int64(byteOrder.Uint64(buf[off : off+8]))
	s.next = int64(byteOrder.Uint64(buf[off+8 : off+16]))
	off += listLinkSize
	copy(s.payload, buf[off:off+int(g.payloadLen)])
	return s
}

// pidPrefixLen is how many bytes of a cursor slot's payload hold the
// owning process id, per spec.md §3 invariant 5: "when payload_len >=
// sizeof(pid)". int32 matches most platforms' pid_t width closely enough
// for this package's single-host, non-portable format.
const pidPrefixLen = 4

func (s *slot) setOwnerPID(pid int32, payloadLen int32) {
	if payloadLen < pidPrefixLen {
		return
	}
	byteOrder.PutUint32(s.payload[0:pidPrefixLen], uint32(pid))
}

func (s *slot) ownerPID(payloadLen int32) (int32, bool) {
	if payloadLen < pidPrefixLen {
		return 0, false
	}
	return int32(byteOrder.Uint32(s.payload[0:pidPrefixLen])), true
}
