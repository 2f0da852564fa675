// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import (
	"encoding/binary"
)

// magic tags every file created by this package. It is the Go rewrite's
// own mark; the original C library stamped "AVL.MW " (Michael Williamson's
// initials).
var magic = [8]byte{'A', 'V', 'L', '.', 'G', 'O', ' ', ' '}

// byteOrder is the encoding used for every multi-byte field in the file:
// the host's native order, so a file is only readable on hosts of the
// same endianness as the one that wrote it — see DESIGN.md Open Question
// (a). Every integer in the header and every slot uses this order.
var byteOrder = binary.NativeEndian

// geometry is the fixed, per-file shape: how many keys, how long a
// payload is, and the derived total slot length. It never changes after
// a file is created (spec.md §3 "Lifecycle: Create").
type geometry struct {
	nKeys      int32
	payloadLen int32
	slotLen    int32
}

// nodeCellSize is the on-disk size of one per-key node cell: a tag/balance
// byte plus two signed 8-byte thread-or-child pointers (spec.md §9
// "Thread encoding in child pointers").
const nodeCellSize = 1 + 8 + 8

// listLinkSize is prev+next, two 8-byte offsets.
const listLinkSize = 8 + 8

func slotLenFor(nKeys, payloadLen int32) int32 {
	return int32(nKeys)*nodeCellSize + listLinkSize + payloadLen
}

// header is the fixed-prefix record described in spec.md §3. Its encoded
// size depends on nKeys (root[0..nKeys) is per-file, not per-slot).
type header struct {
	geometry
	nLive      int64
	nextTicket int64
	roots      []int64 // len == nKeys
	headSeq    int64
	headFree   int64
	headCursor int64
}

// headerFixedSize is everything in the header before the variable-length
// roots slice: magic, nKeys, payloadLen, slotLen, nLive, nextTicket.
const headerFixedSize = 8 + 4 + 4 + 4 + 8 + 8

func headerSize(nKeys int32) int64 {
	return int64(headerFixedSize) + int64(nKeys)*8 + 3*8
}

func (h *header) size() int64 { return headerSize(h.nKeys) }

func (h *header) encode() []byte {
	buf := make([]byte, h.size())
	copy(buf[0:8], magic[:])
	byteOrder.PutUint32(buf[8:12], uint32(h.nKeys))
	byteOrder.PutUint32(buf[12:16], uint32(h.payloadLen))
	byteOrder.PutUint32(buf[16:20], uint32(h.slotLen))
	byteOrder.PutUint64(buf[20:28], uint64(h.nLive))
	byteOrder.PutUint64(buf[28:36], uint64(h.nextTicket))
	off := headerFixedSize
	for _, r := range h.roots {
		byteOrder.PutUint64(buf[off:off+8], uint64(r))
		off += 8
	}
	byteOrder.PutUint64(buf[off:off+8], uint64(h.headSeq))
	byteOrder.PutUint64(buf[off+8:off+16], uint64(h.headFree))
	byteOrder.PutUint64(buf[off+16:off+24], uint64(h.headCursor))
	return buf
}

// decodeHeader reads a header whose nKeys is already known to the caller
// (the geometry passed to Open). It validates the magic and the geometry
// fields against what the caller expects and returns *ErrInvalid on
// mismatch — this is a caller error (reopening with different geometry
// than the file was created with), not structural corruption.
func decodeHeader(buf []byte, want geometry) (*header, error) {
	if len(buf) < headerFixedSize {
		return nil, &ErrInvalid{Op: "open", Msg: "short header"}
	}
	if string(buf[0:8]) != string(magic[:]) {
		return nil, &ErrInvalid{Op: "open", Msg: "bad magic"}
	}
	nKeys := int32(byteOrder.Uint32(buf[8:12]))
	payloadLen := int32(byteOrder.Uint32(buf[12:16]))
	slotLen := int32(byteOrder.Uint32(buf[16:20]))
	if nKeys != want.nKeys {
		return nil, &ErrInvalid{Op: "open", Msg: "n_keys mismatch on reopen"}
	}
	if payloadLen != want.payloadLen {
		return nil, &ErrInvalid{Op: "open", Msg: "payload length mismatch on reopen"}
	}
	if slotLen != slotLenFor(nKeys, payloadLen) {
		return nil, &ErrInvalid{Op: "open", Msg: "slot length mismatch on reopen"}
	}
	h := &header{geometry: geometry{nKeys: nKeys, payloadLen: payloadLen, slotLen: slotLen}}
	if int64(len(buf)) < headerSize(nKeys) {
		return nil, &ErrInvalid{Op: "open", Msg: "short header for n_keys"}
	}
	h.nLive = int64(byteOrder.Uint64(buf[20:28]))
	h.nextTicket = int64(byteOrder.Uint64(buf[28:36]))
	off := headerFixedSize
	h.roots = make([]int64, nKeys)
	for i := range h.roots {
		h.roots[i] = int64(byteOrder.Uint64(buf[off : off+8]))
		off += 8
	}
	h.headSeq = int64(byteOrder.Uint64(buf[off : off+8]))
	h.headFree = int64(byteOrder.Uint64(buf[off+8 : off+16]))
	h.headCursor = int64(byteOrder.Uint64(buf[off+16 : off+24]))
	return h, nil
}

func newHeader(nKeys, payloadLen int32) *header {
	return &header{
		geometry: geometry{nKeys: nKeys, payloadLen: payloadLen, slotLen: slotLenFor(nKeys, payloadLen)},
		roots:    make([]int64, nKeys),
	}
}
