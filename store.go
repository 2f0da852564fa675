// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import (
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// Comparator orders two payloads by the key'th index (0 <= key <
// nKeys). It must be a strict weak ordering and must be the same
// function (behaviorally) across every process that opens a given file:
// spec.md §4.3/§4.4 correctness depends on every opener agreeing on order.
type Comparator func(key int, a, b []byte) int

// options holds the resolved *OpenOption settings (spec.md §9's
// bounded-depth traversal stack and the cross-process lock timeout).
type options struct {
	lockTimeout   time.Duration
	maxTreeDepth  int
	skipProbeScan bool
}

func defaultOptions() options {
	return options{
		lockTimeout:  0, // 0 = block indefinitely, matching F_SETLKW semantics
		maxTreeDepth: 64,
	}
}

// OpenOption configures a Store at Open time. Grounded on dbm.Options
// (dbm/options.go) restyled as functional options for this package's
// smaller knob set.
type OpenOption func(*options)

// WithLockTimeout bounds how long Store.Lock waits for the caller-visible
// lock before returning os.ErrDeadlineExceeded. Zero (the default) blocks
// indefinitely.
func WithLockTimeout(d time.Duration) OpenOption {
	return func(o *options) { o.lockTimeout = d }
}

// WithMaxTreeDepth overrides the depth bound that Scan enforces on its
// explicit traversal stack (spec.md §9 "bounded-depth traversal stack");
// insert, delete and navigation do not check it. The default of 64
// covers any AVL tree with fewer than 2^45 nodes.
func WithMaxTreeDepth(n int) OpenOption {
	return func(o *options) { o.maxTreeDepth = n }
}

// WithoutExistenceProbe disables the in-memory bloom-filter accelerator
// (probe.go) built by one forward scan on Open. Useful for very large
// files opened for a single short-lived operation where the scan cost
// isn't worth it.
func WithoutExistenceProbe() OpenOption {
	return func(o *options) { o.skipProbeScan = true }
}

// Store is an open handle on one avl-file. All exported methods are safe
// for concurrent use by multiple goroutines sharing one Store (guarded by
// mu) and by multiple processes sharing one path (guarded by the
// byte-range lock at opLockOffset, taken inside withOpLock).
type Store struct {
	mu sync.Mutex

	f    filer
	lock rangeLocker
	path string
	pid  int32

	geom geometry
	cmp  Comparator
	opts options

	hdr        *header
	eof        int64 // cached watermark, spec.md §4.1
	lockLength int64 // unused; slot locks are taken with a length of 1

	probes []*bloom.BloomFilter // len == nKeys, nil entries if skipProbeScan

	cursorSlot int64 // this handle's own cursor slot offset; set by Open, 0 only before acquireCursor's first call ever runs
	lastErr    error // spec.md §3.3, per-handle instead of process-global

	closed bool
}

// Open opens or creates an avl-file at path with the given geometry and
// comparator (spec.md §6 "open"). If the file does not exist it is
// created with an empty header; if it exists its on-disk geometry must
// match payloadLen/nKeys exactly or ErrInvalid is returned. It also
// claims this handle's cursor slot up front (cursor.go), for the whole
// lifetime of the handle, rather than waiting for the first navigation
// call.
func Open(path string, payloadLen, nKeys int, cmp Comparator, opts ...OpenOption) (*Store, error) {
	if payloadLen < 0 || nKeys < 0 {
		return nil, &ErrInvalid{Op: "open", Msg: "negative payload_len or n_keys"}
	}
	if cmp == nil && nKeys > 0 {
		return nil, &ErrInvalid{Op: "open", Msg: "comparator required when n_keys > 0"}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	of, err := newOSFiler(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Store{
		f:      of,
		lock:   &fcntlLocker{fd: f.Fd()},
		path:   path,
		pid:    int32(os.Getpid()),
		geom:   geometry{nKeys: int32(nKeys), payloadLen: int32(payloadLen), slotLen: slotLenFor(int32(nKeys), int32(payloadLen))},
		cmp:    cmp,
		opts:   o,
		probes: make([]*bloom.BloomFilter, nKeys),
	}
	if err := s.initOrLoad(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.withOpLock(func() error { return s.acquireCursor() }); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// openMem opens a Store over an in-memory filer and a shared memLocker,
// for tests that simulate multiple processes on one file without
// touching the filesystem.
func openMem(mf *memFiler, ml *memLocker, pid int32, payloadLen, nKeys int, cmp Comparator, opts ...OpenOption) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		f:      mf,
		lock:   ml,
		path:   mf.Name(),
		pid:    pid,
		geom:   geometry{nKeys: int32(nKeys), payloadLen: int32(payloadLen), slotLen: slotLenFor(int32(nKeys), int32(payloadLen))},
		cmp:    cmp,
		opts:   o,
		probes: make([]*bloom.BloomFilter, nKeys),
	}
	if err := s.initOrLoad(); err != nil {
		return nil, err
	}
	if err := s.withOpLock(func() error { return s.acquireCursor() }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initOrLoad() error {
	size, err := s.f.Size()
	if err != nil {
		return err
	}
	if size == 0 {
		s.hdr = newHeader(s.geom.nKeys, s.geom.payloadLen)
		if _, err := s.f.WriteAt(s.hdr.encode(), 0); err != nil {
			return err
		}
		s.eof = s.hdr.size()
		return s.f.Sync()
	}

	buf := make([]byte, headerFixedSize)
	if _, err := s.f.ReadAt(buf, 0); err != nil {
		return err
	}
	// Peek nKeys out of the fixed prefix before we know the full header
	// size, then re-read the full header now that we know how long it is.
	if string(buf[0:8]) != string(magic[:]) {
		return &ErrInvalid{Op: "open", Msg: "bad magic"}
	}
	onDiskNKeys := int32(byteOrder.Uint32(buf[8:12]))
	full := make([]byte, headerSize(onDiskNKeys))
	if _, err := s.f.ReadAt(full, 0); err != nil {
		return err
	}
	hdr, err := decodeHeader(full, s.geom)
	if err != nil {
		return err
	}
	s.hdr = hdr
	s.eof = size

	if !s.opts.skipProbeScan {
		s.rebuildProbes()
	}
	return nil
}

// withOpLock serializes fn against every other operation on this path,
// in-process via mu and cross-process via the byte-range lock at
// opLockOffset (spec.md §4.2). It refreshes the cached EOF watermark
// before fn runs and flushes the header afterward, mirroring the
// original's lock/refresh/work/unlock envelope around every public call.
func (s *Store) withOpLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &ErrInvalid{Op: "op", Msg: "store is closed"}
	}
	if err := s.lock.lockRange(opLockOffset, 1); err != nil {
		return err
	}
	defer s.lock.unlockRange(opLockOffset, 1)

	size, err := s.f.Size()
	if err != nil {
		return err
	}
	if size < s.eof {
		corrupt("eof-shrink", "file shrank from under us: cached eof %d, actual size %d", s.eof, size)
	}
	s.eof = size

	err = fn()

	if _, werr := s.f.WriteAt(s.hdr.encode(), 0); werr != nil && err == nil {
		err = werr
	}
	s.lastErr = err
	return err
}

// Lock acquires the caller-visible byte-range lock (spec.md §6 "lock"),
// held across whatever sequence of operations the caller performs next,
// until Unlock. It does not serialize against this Store's own internal
// opLockOffset lock, which is taken and released per-operation regardless.
func (s *Store) Lock() error {
	if s.opts.lockTimeout <= 0 {
		return s.lock.lockRange(userLockOffset, 1)
	}
	deadline := time.Now().Add(s.opts.lockTimeout)
	for {
		ok, err := s.lock.tryLockRange(userLockOffset, 1)
		if err != nil || ok {
			return err
		}
		if time.Now().After(deadline) {
			return os.ErrDeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

// Unlock releases the lock acquired by Lock (spec.md §6 "unlock").
func (s *Store) Unlock() error {
	return s.lock.unlockRange(userLockOffset, 1)
}

// Close flushes the header, releases this handle's cursor slot (if one
// was acquired), and closes the underlying file (spec.md §6 "close").
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.lock.lockRange(opLockOffset, 1); err == nil {
		if s.cursorSlot != 0 {
			s.releaseCursorLocked()
		}
		s.f.WriteAt(s.hdr.encode(), 0)
		s.lock.unlockRange(opLockOffset, 1)
	}
	return s.f.Close()
}

func (s *Store) readSlot(off int64) *slot {
	if off+int64(s.geom.slotLen) > s.eof {
		corrupt("read-past-eof", "slot read at %d exceeds eof watermark %d", off, s.eof)
	}
	buf := make([]byte, s.geom.slotLen)
	if _, err := s.f.ReadAt(buf, off); err != nil {
		corrupt("read-error", "reading slot at %d: %v", off, err)
	}
	return decodeSlot(buf, s.geom)
}

func (s *Store) writeSlot(off int64, sl *slot) {
	if off+int64(s.geom.slotLen) > s.eof {
		corrupt("write-past-eof", "slot write at %d exceeds eof watermark %d", off, s.eof)
	}
	if _, err := s.f.WriteAt(sl.encode(s.geom), off); err != nil {
		corrupt("write-error", "writing slot at %d: %v", off, err)
	}
}
