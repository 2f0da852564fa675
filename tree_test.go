// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func wantAscending(n int) []uint32 {
	w := make([]uint32, n)
	for i := range w {
		w[i] = uint32(i)
	}
	return w
}

// walkAscending drains a StartAtGE cursor from the very bottom and returns
// the key'th field of every record seen, in ascending order.
func walkAscending(t *testing.T, s *Store, key int) []uint32 {
	t.Helper()
	c, payload, ok, err := s.StartAtGE(key, makePayload(0, 0, 0))
	if err != nil {
		t.Fatalf("StartAtGE: %v", err)
	}
	var got []uint32
	for ok {
		got = append(got, binary.BigEndian.Uint32(payload[key*4:key*4+4]))
		payload, ok = c.Next()
	}
	return got
}

func TestInsertAscendingOrderMaintained(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	n := 200
	for i := 0; i < n; i++ {
		if err := s.Insert(makePayload(uint32(i), 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	got := walkAscending(t, s, 0)
	if d := cmp.Diff(wantAscending(n), got); d != "" {
		t.Fatalf("ascending walk mismatch (-want +got):\n%s", d)
	}
}

func TestInsertRandomOrderStillSorted(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	r := rand.New(rand.NewSource(1))
	n := 300
	perm := r.Perm(n)
	for _, v := range perm {
		if err := s.Insert(makePayload(uint32(v), 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}
	got := walkAscending(t, s, 0)
	if d := cmp.Diff(wantAscending(n), got); d != "" {
		t.Fatalf("ascending walk mismatch (-want +got):\n%s", d)
	}
}

func TestInsertMaintainsBoundedHeight(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	n := 1000
	for i := 0; i < n; i++ {
		if err := s.Insert(makePayload(uint32(i), 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	res, err := s.Scan(0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Count != int64(n) {
		t.Fatalf("count = %d, want %d", res.Count, n)
	}
	// AVL height is bounded by ~1.44*log2(n); for n=1000 that's well under
	// 20, so any height anywhere near maxTreeDepth (64) signals a rotation
	// bug turning the tree into something close to a linked list.
	if res.Height > 20 {
		t.Fatalf("height = %d, suspiciously large for n=%d (AVL should stay near log2(n))", res.Height, n)
	}
}

func TestMultipleKeysIndependentOrder(t *testing.T) {
	s, _, _ := newTestStore(t, 2)
	defer s.Close()

	// key 0 ascending as inserted, key 1 descending.
	n := 50
	for i := 0; i < n; i++ {
		if err := s.Insert(makePayload(uint32(i), uint32(n-i), 0)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	k0 := walkAscending(t, s, 0)
	k1 := walkAscending(t, s, 1)
	if len(k0) != n || len(k1) != n {
		t.Fatalf("got %d/%d records, want %d", len(k0), len(k1), n)
	}
	for i := 1; i < n; i++ {
		if k0[i-1] > k0[i] {
			t.Fatalf("key0 not ascending at %d: %d > %d", i, k0[i-1], k0[i])
		}
		if k1[i-1] > k1[i] {
			t.Fatalf("key1 not ascending at %d: %d > %d", i, k1[i-1], k1[i])
		}
	}
}

func TestDuplicateKeysAllowed(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	for i := 0; i < 10; i++ {
		if err := s.Insert(makePayload(7, 0, byte(i))); err != nil {
			t.Fatalf("insert dup %d: %v", i, err)
		}
	}
	res, err := s.Scan(0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Count != 10 {
		t.Fatalf("count = %d, want 10", res.Count)
	}
}

func TestZeroKeyStoreSequentialOnly(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	defer s.Close()

	for i := 0; i < 5; i++ {
		if err := s.Insert(makePayload(uint32(i), 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	sc, err := s.StartSequential()
	if err != nil {
		t.Fatalf("StartSequential: %v", err)
	}
	count := 0
	for {
		_, ok := sc.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 5 {
		t.Fatalf("sequential count = %d, want 5", count)
	}
}
