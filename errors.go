// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import "fmt"

// ErrNotFound is returned by navigation and lookup operations that find
// no matching record. It carries no diagnostic and is never logged; it is
// spec.md §7.2's "benign" not-found case.
var ErrNotFound = fmt.Errorf("avlfile: not found")

// ErrInvalid reports a caller error: an out-of-range key index, a
// geometry mismatch on reopen, or an n_live overflow (spec.md §7.1). The
// handle remains usable after ErrInvalid.
type ErrInvalid struct {
	Op  string
	Msg string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("avlfile: %s: %s", e.Op, e.Msg)
}

// CorruptError describes the structural impossibility that triggered a
// process abort (spec.md §7.4): a read or write past the cached EOF
// watermark, an inconsistent list link found during compaction, an
// impossible balance factor during rotation, or a node missing from the
// tree it was searched in.
//
// CorruptError is never returned; it is always the value of a panic. The
// design explicitly does not attempt recovery — see spec.md §5
// "Cancellation" and §9's note on the original's abort()-on-corruption
// behavior.
type CorruptError struct {
	Tag string // short diagnostic tag, mirrors the original's numbered messages
	Msg string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("avlfile: corrupt (%s): %s", e.Tag, e.Msg)
}

func corrupt(tag, format string, args ...interface{}) {
	panic(&CorruptError{Tag: tag, Msg: fmt.Sprintf(format, args...)})
}
