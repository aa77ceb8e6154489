// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// contextReader wraps an io.Reader to make it respect context cancellation.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (n int, err error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// seekReaderAt adapts an io.ReadSeeker to io.ReaderAt. Calls are serialized
// on the shared cursor, so concurrent readers never interleave seeks.
type seekReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}

// sourceError tags a failure of the caller's source with ErrIO. End of
// stream conditions pass through unchanged since decoders compare them.
func sourceError(err error) error {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// sourceReaderAt marks every read failure of an archive source.
type sourceReaderAt struct {
	ra io.ReaderAt
}

func (s sourceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.ra.ReadAt(p, off)
	return n, sourceError(err)
}

// sourceReadSeeker is the io.ReadSeeker counterpart of sourceReaderAt.
type sourceReadSeeker struct {
	rs io.ReadSeeker
}

func newSourceReadSeeker(rs io.ReadSeeker) io.ReadSeeker {
	if _, ok := rs.(sourceReadSeeker); ok {
		return rs
	}
	return sourceReadSeeker{rs: rs}
}

func (s sourceReadSeeker) Read(p []byte) (int, error) {
	n, err := s.rs.Read(p)
	return n, sourceError(err)
}

func (s sourceReadSeeker) Seek(offset int64, whence int) (int64, error) {
	n, err := s.rs.Seek(offset, whence)
	return n, sourceError(err)
}

func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// winFiletimeToTime converts Windows FILETIME (100ns ticks since 1601) to Go time.Time.
func winFiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}

	// 116444736000000000 is the number of 100ns intervals between
	// Jan 1, 1601 (UTC) and Jan 1, 1970 (UTC).
	const offset = 116444736000000000
	const ticksPerSecond = 10000000

	if ft < offset {
		diff := int64(offset - ft)
		seconds := -(diff / ticksPerSecond)
		nanos := -(diff % ticksPerSecond) * 100
		if nanos < 0 {
			seconds--
			nanos += 1000000000
		}
		return time.Unix(seconds, nanos).UTC()
	}

	diff := ft - offset
	seconds := int64(diff / ticksPerSecond)
	nanos := int64(diff%ticksPerSecond) * 100

	return time.Unix(seconds, nanos).UTC()
}

// hasMeta checks if the string contains pattern matching characters.
func hasMeta(path string) bool {
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '*', '?', '[', '\\':
			return true
		}
	}
	return false
}
