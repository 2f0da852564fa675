// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avlfile

import (
	"os"
	"sync"

	"github.com/cznic/mathutil"
)

// filer is the positioned-I/O abstraction this package builds on, adapted
// from lldb's Filer (lldb/filer.go) with the transactional members
// (BeginUpdate/EndUpdate/Rollback) and PunchHole dropped: this format has
// no write-ahead log and never punches holes, only truncates on compaction
// (spec.md §4.7).
type filer interface {
	Name() string
	ReadAt(b []byte, off int64) (int, error)
	WriteAt(b []byte, off int64) (int, error)
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// osFiler is a filer backed by an *os.File, adapted from lldb/osfiler.go.
type osFiler struct {
	f *os.File

	mu  sync.Mutex
	eof int64 // watermark, mathutil.MaxInt64'd forward on every successful write
}

func newOSFiler(f *os.File) (*osFiler, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &osFiler{f: f, eof: fi.Size()}, nil
}

func (o *osFiler) Name() string { return o.f.Name() }

func (o *osFiler) ReadAt(b []byte, off int64) (int, error) {
	return o.f.ReadAt(b, off)
}

func (o *osFiler) WriteAt(b []byte, off int64) (int, error) {
	n, err := o.f.WriteAt(b, off)
	if err == nil {
		o.mu.Lock()
		o.eof = mathutil.MaxInt64(o.eof, off+int64(n))
		o.mu.Unlock()
	}
	return n, err
}

func (o *osFiler) Size() (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eof, nil
}

func (o *osFiler) Truncate(size int64) error {
	if err := o.f.Truncate(size); err != nil {
		return err
	}
	o.mu.Lock()
	o.eof = mathutil.MinInt64(o.eof, size)
	if size > o.eof {
		o.eof = size
	}
	o.mu.Unlock()
	return nil
}

func (o *osFiler) Sync() error  { return o.f.Sync() }
func (o *osFiler) Close() error { return o.f.Close() }

// memFiler is an in-memory filer for tests, adapted from lldb/memfiler.go.
// It grows in fixed pages so repeated small writes near the watermark don't
// reallocate on every call.
const memFilerPageSize = 1 << 16

type memFiler struct {
	mu    sync.Mutex
	pages map[int64][]byte
	eof   int64
	name  string
}

func newMemFiler(name string) *memFiler {
	return &memFiler{pages: make(map[int64][]byte), name: name}
}

func (m *memFiler) Name() string { return m.name }

func (m *memFiler) pageFor(off int64) (page []byte, pageOff int64) {
	idx := off / memFilerPageSize
	p, ok := m.pages[idx]
	if !ok {
		p = make([]byte, memFilerPageSize)
		m.pages[idx] = p
	}
	return p, off % memFilerPageSize
}

func (m *memFiler) ReadAt(b []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for n < len(b) {
		if off+int64(n) >= m.eof {
			break
		}
		page, pageOff := m.pageFor(off + int64(n))
		c := copy(b[n:], page[pageOff:])
		n += c
	}
	if n < len(b) {
		return n, os.ErrClosed // EOF-like; tests treat short reads as caller bugs
	}
	return n, nil
}

func (m *memFiler) WriteAt(b []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for n < len(b) {
		page, pageOff := m.pageFor(off + int64(n))
		c := copy(page[pageOff:], b[n:])
		n += c
	}
	m.eof = mathutil.MaxInt64(m.eof, off+int64(n))
	return n, nil
}

func (m *memFiler) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eof, nil
}

func (m *memFiler) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eof = size
	for idx := range m.pages {
		if idx*memFilerPageSize >= size {
			delete(m.pages, idx)
		}
	}
	return nil
}

func (m *memFiler) Sync() error  { return nil }
func (m *memFiler) Close() error { return nil }
