// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import (
	"encoding/binary"
	"errors"
	"testing"
)

const testPayloadLen = 16

// intCmp compares the big-endian uint32 stored at byte offset key*4.
func intCmp(key int, a, b []byte) int {
	off := key * 4
	av := binary.BigEndian.Uint32(a[off : off+4])
	bv := binary.BigEndian.Uint32(b[off : off+4])
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func makePayload(k0, k1 uint32, tag byte) []byte {
	p := make([]byte, testPayloadLen)
	binary.BigEndian.PutUint32(p[0:4], k0)
	binary.BigEndian.PutUint32(p[4:8], k1)
	for i := 8; i < testPayloadLen; i++ {
		p[i] = tag
	}
	return p
}

func newTestStore(t *testing.T, nKeys int) (*Store, *memFiler, *memLocker) {
	t.Helper()
	mf := newMemFiler(t.Name())
	ml := newMemLocker()
	s, err := openMem(mf, ml, 1, testPayloadLen, nKeys, intCmp)
	if err != nil {
		t.Fatalf("openMem: %v", err)
	}
	return s, mf, ml
}

func TestOpenCreatesHeader(t *testing.T) {
	s, _, _ := newTestStore(t, 2)
	defer s.Close()
	if s.hdr.nKeys != 2 {
		t.Fatalf("nKeys = %d, want 2", s.hdr.nKeys)
	}
	if s.hdr.nLive != 0 {
		t.Fatalf("nLive = %d, want 0", s.hdr.nLive)
	}
}

func TestReopenGeometryMismatch(t *testing.T) {
	mf := newMemFiler("mismatch")
	ml := newMemLocker()
	s1, err := openMem(mf, ml, 1, testPayloadLen, 2, intCmp)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	_, err = openMem(mf, ml, 1, testPayloadLen, 3, intCmp)
	if err == nil {
		t.Fatalf("expected geometry mismatch error")
	}
	var ierr *ErrInvalid
	if !errors.As(err, &ierr) {
		t.Fatalf("got %v (%T), want *ErrInvalid", err, err)
	}
}

func TestReopenPreservesData(t *testing.T) {
	mf := newMemFiler("preserve")
	ml := newMemLocker()
	s1, err := openMem(mf, ml, 1, testPayloadLen, 1, intCmp)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint32(0); i < 5; i++ {
		if err := s1.Insert(makePayload(i, 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	s1.Close()

	s2, err := openMem(mf, ml, 2, testPayloadLen, 1, intCmp)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if s2.hdr.nLive != 5 {
		t.Fatalf("nLive after reopen = %d, want 5", s2.hdr.nLive)
	}
	res, err := s2.Scan(0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Count != 5 {
		t.Fatalf("scan count = %d, want 5", res.Count)
	}
}

func TestLockUnlock(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	defer s.Close()
	if err := s.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := s.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestInsertWrongPayloadLength(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()
	err := s.Insert(make([]byte, testPayloadLen+1))
	var ierr *ErrInvalid
	if !errors.As(err, &ierr) {
		t.Fatalf("got %v, want *ErrInvalid", err)
	}
}

func TestCheckKeyOutOfRange(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()
	if _, err := s.Find(5, makePayload(0, 0, 0)); err == nil {
		t.Fatalf("expected error for out-of-range key")
	}
	if _, err := s.Find(-1, makePayload(0, 0, 0)); err == nil {
		t.Fatalf("expected error for negative key")
	}
}

func TestClosedStoreRejectsOps(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	s.Close()
	if err := s.Insert(makePayload(1, 0, 0)); err == nil {
		t.Fatalf("expected error after Close")
	}
}
