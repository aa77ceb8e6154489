// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

const scanBufferSize = 4096

// NoHint makes FindSignature start at the current read position.
const NoHint int64 = -1

// FindSignature returns the absolute offset of the first occurrence of sig
// at or after hint, or after the current position if hint is NoHint.
// Only occurrences that end at or before limit are reported; a negative
// limit scans to the end of the stream.
//
// The read position of r is restored before returning. ErrNoSignature is
// returned when the stream (or limit) is exhausted without a match.
func FindSignature(r io.ReadSeeker, sig uint32, hint, limit int64) (offset int64, err error) {
	origin, err := Tell(r)
	if err != nil {
		return 0, err
	}
	defer func() {
		if serr := SeekTo(r, origin); serr != nil && err == nil {
			err = serr
		}
	}()

	pos := origin
	if hint >= 0 {
		pos = hint
		if err := SeekTo(r, pos); err != nil {
			return 0, err
		}
	}

	first := byte(sig)
	lower := uint16(sig)
	upper := uint16(sig >> 16)
	br := bufio.NewReaderSize(r, scanBufferSize)

	for ; limit < 0 || pos+4 <= limit; pos++ {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, ErrNoSignature
			}
			return 0, err
		}
		if b != first {
			continue
		}

		next, err := br.Peek(3)
		if len(next) < 3 {
			if err == nil || isShortRead(err) {
				return 0, ErrNoSignature
			}
			return 0, err
		}
		if uint16(b)|uint16(next[0])<<8 != lower {
			continue
		}
		if binary.LittleEndian.Uint16(next[1:3]) == upper {
			return pos, nil
		}
	}

	return 0, ErrNoSignature
}

// FindLastSignature scans the final window bytes of r backward and returns
// the offset of the last occurrence of sig for which accept reports true.
// A nil accept takes the first candidate found. The read position of r is
// restored before returning.
func FindLastSignature(r io.ReadSeeker, sig uint32, window int64, accept func(off int64) bool) (offset int64, err error) {
	origin, err := Tell(r)
	if err != nil {
		return 0, err
	}
	defer func() {
		if serr := SeekTo(r, origin); serr != nil && err == nil {
			err = serr
		}
	}()

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	floor := max(size-window, 0)
	buf := make([]byte, scanBufferSize+3)

	// Each chunk covers [start, end) plus three bytes of overlap, so a
	// signature straddling two chunks is seen exactly once.
	for end := size; end > floor; {
		start := max(floor, end-scanBufferSize)
		n := int(min(end+3, size) - start)

		if err := SeekTo(r, start); err != nil {
			return 0, err
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return 0, err
		}

		for p := n - 4; p >= 0; p-- {
			if binary.LittleEndian.Uint32(buf[p:p+4]) != sig {
				continue
			}
			candidate := start + int64(p)
			if accept == nil || accept(candidate) {
				return candidate, nil
			}
		}
		end = start
	}

	return 0, ErrNoSignature
}

// IsNoSignature reports whether err means a scan ran out of input.
func IsNoSignature(err error) bool {
	return errors.Is(err, ErrNoSignature)
}
