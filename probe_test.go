// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import "testing"

func TestProbeNeverFalseNegative(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	present := make([][]byte, 0, 100)
	for i := 0; i < 100; i++ {
		p := makePayload(uint32(i), 0, 0)
		present = append(present, p)
		if err := s.Insert(p); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for _, p := range present {
		if s.probeSaysAbsent(0, p) {
			t.Fatalf("probe falsely claimed absence of a present record")
		}
	}
}

func TestProbeSkippedForShortTarget(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()
	if err := s.Insert(makePayload(1, 0, 0)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// A target shorter than a full payload must never consult the filter,
	// regardless of what it would answer, since the filter only ever
	// indexed whole-payload byte strings.
	if s.probeSaysAbsent(0, []byte{0, 0, 0, 99}) {
		t.Fatalf("probe must not answer for a non-full-length target")
	}
}

func TestProbeRebuildsOnReopen(t *testing.T) {
	mf := newMemFiler("probe-reopen")
	ml := newMemLocker()
	s1, err := openMem(mf, ml, 1, testPayloadLen, 1, intCmp)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p := makePayload(3, 0, 0)
	if err := s1.Insert(p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s1.Close()

	s2, err := openMem(mf, ml, 2, testPayloadLen, 1, intCmp)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if s2.probes[0] == nil {
		t.Fatalf("probe not rebuilt on reopen")
	}
	if s2.probeSaysAbsent(0, p) {
		t.Fatalf("rebuilt probe falsely claims absence of a record present before reopen")
	}
}

func TestWithoutExistenceProbeSkipsScan(t *testing.T) {
	mf := newMemFiler("probe-skip")
	ml := newMemLocker()
	s, err := openMem(mf, ml, 1, testPayloadLen, 1, intCmp, WithoutExistenceProbe())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if s.probes[0] != nil {
		t.Fatalf("probe built despite WithoutExistenceProbe")
	}
	// Find must still work correctly by falling back to a real descent.
	p := makePayload(1, 0, 0)
	if err := s.Insert(p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Find(0, p); err != nil {
		t.Fatalf("find with probes disabled: %v", err)
	}
}
