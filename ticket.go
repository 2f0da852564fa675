// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

// NextTicket returns a monotonically increasing number, persisted in the
// header, for callers that want a caller-assigned unique sequence
// independent of any key (spec.md §6 "next-ticket", mirroring the
// original's avl_file_getnum).
func (s *Store) NextTicket() (int64, error) {
	var n int64
	err := s.withOpLock(func() error {
		s.hdr.nextTicket++
		n = s.hdr.nextTicket
		return nil
	})
	return n, err
}
