// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import "testing"

// TestDeleteFixesUpCursorPivot reproduces the maintainer-flagged failure:
// deleting a record that a live TreeCursor's successor pivot names must
// retarget that pivot to the deleted record's own successor (spec.md
// §4.4), not leave the cursor stuck pointing at a vanished offset.
func TestDeleteFixesUpCursorPivot(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	for _, v := range []uint32{1, 2, 3, 4, 5} {
		if err := s.Insert(makePayload(v, 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	c, landed, ok, err := s.StartAtGE(0, makePayload(2, 0, 0))
	if err != nil {
		t.Fatalf("StartAtGE: %v", err)
	}
	if !ok || be32(landed) != 2 {
		t.Fatalf("expected to land on 2, got %v, ok=%v", landed, ok)
	}

	if err := s.Delete(makePayload(3, 0, 0)); err != nil {
		t.Fatalf("delete 3: %v", err)
	}

	p, ok := c.Next()
	if !ok || be32(p) != 4 {
		t.Fatalf("Next() after deleting the successor = %v, ok=%v, want 4", p, ok)
	}
}

// TestDeleteFixesUpCursorPredecessorPivot is the mirror of
// TestDeleteFixesUpCursorPivot on the predecessor side.
func TestDeleteFixesUpCursorPredecessorPivot(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	for _, v := range []uint32{1, 2, 3, 4, 5} {
		if err := s.Insert(makePayload(v, 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	c, landed, ok, err := s.StartAtGE(0, makePayload(4, 0, 0))
	if err != nil {
		t.Fatalf("StartAtGE: %v", err)
	}
	if !ok || be32(landed) != 4 {
		t.Fatalf("expected to land on 4, got %v, ok=%v", landed, ok)
	}

	if err := s.Delete(makePayload(3, 0, 0)); err != nil {
		t.Fatalf("delete 3: %v", err)
	}

	p, ok := c.Prev()
	if !ok || be32(p) != 2 {
		t.Fatalf("Prev() after deleting the predecessor = %v, ok=%v, want 2", p, ok)
	}
}

// TestDeleteFixesUpSeqCursor is the sequential-list analogue: deleting a
// record that a SeqCursor's persisted scan position names must advance
// that position past the deleted record rather than getting stuck.
func TestDeleteFixesUpSeqCursor(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	for _, v := range []uint32{1, 2, 3, 4, 5} {
		if err := s.Insert(makePayload(v, 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}

	sc, err := s.StartSequential()
	if err != nil {
		t.Fatalf("StartSequential: %v", err)
	}
	// Insertion order was 1,2,3,4,5, so the sequential list yields most
	// recently inserted first: 5, then 4, then (absent the delete below) 3.
	p, ok := sc.Next()
	if !ok || be32(p) != 5 {
		t.Fatalf("Next() = %v, ok=%v, want 5", p, ok)
	}
	p, ok = sc.Next()
	if !ok || be32(p) != 4 {
		t.Fatalf("Next() = %v, ok=%v, want 4", p, ok)
	}
	// The cursor's persisted scan position now names record 3's offset.
	if err := s.Delete(makePayload(3, 0, 0)); err != nil {
		t.Fatalf("delete 3: %v", err)
	}
	p, ok = sc.Next()
	if !ok || be32(p) != 2 {
		t.Fatalf("Next() after deleting the pending record = %v, ok=%v, want 2 (skipping deleted 3)", p, ok)
	}
}

// TestSquashFixesUpCursorPivot reproduces the other maintainer-flagged
// failure: Squash relocating a slot that a live TreeCursor's pivot names
// must rewrite that pivot to the new offset, or the next navigation call
// reads past the shrunk eof watermark and aborts with
// corrupt("read-past-eof").
func TestSquashFixesUpCursorPivot(t *testing.T) {
	s, _, _ := newTestStore(t, 1)
	defer s.Close()

	for v := uint32(0); v < 10; v++ {
		if err := s.Insert(makePayload(v, 0, 0)); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}
	// Free up a hole below the top slot so Squash's Phase B has somewhere
	// to relocate the top (highest-offset) record into.
	if err := s.Delete(makePayload(5, 0, 0)); err != nil {
		t.Fatalf("delete 5: %v", err)
	}

	// Land on 8; its successor pivot names record 9, which — being the
	// most recently allocated slot — sits at the file's top offset and is
	// exactly what Squash's Phase B will relocate.
	c, landed, ok, err := s.StartAtGE(0, makePayload(8, 0, 0))
	if err != nil {
		t.Fatalf("StartAtGE: %v", err)
	}
	if !ok || be32(landed) != 8 {
		t.Fatalf("expected to land on 8, got %v, ok=%v", landed, ok)
	}

	if err := s.Squash(); err != nil {
		t.Fatalf("squash: %v", err)
	}

	p, ok := c.Next()
	if !ok || be32(p) != 9 {
		t.Fatalf("Next() after squash relocated the successor = %v, ok=%v, want 9", p, ok)
	}
}
