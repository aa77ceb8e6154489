// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/zipindex/internal"
)

// RecoveryEntry is a record of uncertain provenance found by
// IntensiveIndexArchive. It is always one of *Entry (central directory),
// *LocalFileHeader (local header only) or *EndOfCentralDirectory.
//
//	switch v := re.(type) {
//	case *zipindex.Entry:
//	case *zipindex.LocalFileHeader:
//	case *zipindex.EndOfCentralDirectory:
//	}
type RecoveryEntry interface {
	recoveryEntry()
}

func (*Entry) recoveryEntry()                 {}
func (*LocalFileHeader) recoveryEntry()       {}
func (*EndOfCentralDirectory) recoveryEntry() {}

// RecoveryIndex is the merged result of a recovery scan. Paths known to the
// central directory map to *Entry; paths seen only in a local file header
// map to *LocalFileHeader.
type RecoveryIndex struct {
	entries  *orderedIndex[RecoveryEntry]
	trailers []*EndOfCentralDirectory
}

// Len returns the number of distinct paths recovered.
func (x *RecoveryIndex) Len() int { return x.entries.len() }

// Keys returns the recovered paths in lexical order.
func (x *RecoveryIndex) Keys() []string { return append([]string(nil), x.entries.keys...) }

// Get returns the record recovered for name.
func (x *RecoveryIndex) Get(name string) (RecoveryEntry, bool) {
	return x.entries.get(normalizeName(name))
}

// Entries returns the recovered records in lexical path order.
func (x *RecoveryIndex) Entries() []RecoveryEntry { return x.entries.list() }

// Trailers returns every decodable End Of Central Directory record in stream order.
func (x *RecoveryIndex) Trailers() []*EndOfCentralDirectory { return x.trailers }

// LocalOnly returns the records found only through their local file header.
func (x *RecoveryIndex) LocalOnly() []*LocalFileHeader {
	var out []*LocalFileHeader
	for _, re := range x.entries.list() {
		if h, ok := re.(*LocalFileHeader); ok {
			out = append(out, h)
		}
	}
	return out
}

// IntensiveIndexArchive builds a best-effort index of a damaged archive.
//
// It walks central directory records from the start of the stream, then
// scans the whole stream for local file headers and merges both views:
// central directory entries win, and paths found only in a local header are
// added as *LocalFileHeader. Undecodable candidates are skipped instead of
// aborting. Only failures of the underlying stream are returned.
//
// Local-header-only records are advisory: their signature may occur inside
// unrelated compressed data.
func IntensiveIndexArchive(r io.ReadSeeker, opts ...Option) (*RecoveryIndex, error) {
	r = newSourceReadSeeker(r)
	d := newDecoder(newConfig(opts))
	idx := &RecoveryIndex{entries: newOrderedIndex[RecoveryEntry]()}

	central := newOrderedIndex[*Entry]()
	err := d.scanAll(r, internal.CentralDirectorySignature, func(off int64) (int64, error) {
		e, err := d.entry(r, off)
		if err != nil {
			return 0, err
		}
		central.put(e.Key(), e)
		return off + e.Len, nil
	})
	if err != nil {
		return nil, err
	}

	descriptors, err := d.collectDescriptors(r)
	if err != nil {
		return nil, err
	}

	local := newOrderedIndex[*LocalFileHeader]()
	err = d.scanAll(r, internal.LocalFileHeaderSignature, func(off int64) (int64, error) {
		h, err := d.localHeader(r, off)
		if err != nil {
			return 0, err
		}
		if h.HasDataDescriptor() {
			d.resolveDescriptor(h, descriptors)
		}
		local.put(h.Key(), h)
		return h.DataOffset, nil
	})
	if err != nil {
		return nil, err
	}

	err = d.scanAll(r, internal.EndOfCentralDirSignature, func(off int64) (int64, error) {
		raw, err := internal.ReadEndOfCentralDir(r, off)
		if err != nil {
			return 0, err
		}
		idx.trailers = append(idx.trailers, newEndOfCentralDirectory(raw, d.cfg.Filenames))
		return off + internal.EndOfCentralDirLen, nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range central.list() {
		idx.entries.put(e.Key(), e)
	}
	for _, h := range local.list() {
		if _, ok := idx.entries.get(h.Key()); ok {
			continue
		}
		idx.entries.put(h.Key(), h)
		d.log.WithFields(logrus.Fields{
			"offset": h.Offset,
			"name":   h.Name,
		}).Warn("recovered entry from local file header only")
	}

	d.log.WithFields(logrus.Fields{
		"central":  central.len(),
		"local":    local.len(),
		"trailers": len(idx.trailers),
	}).Debug("recovery scan finished")

	return idx, nil
}

// scanAll visits every occurrence of sig from the start of r. visit returns
// the position to resume from. Records that fail to decode are skipped
// four bytes past their signature.
func (d *decoder) scanAll(r io.ReadSeeker, sig uint32, visit func(off int64) (int64, error)) error {
	for pos := int64(0); ; {
		off, err := internal.FindSignature(r, sig, pos, -1)
		if internal.IsNoSignature(err) {
			return nil
		}
		if err != nil {
			return err
		}

		next, err := visit(off)
		if err != nil {
			if !isRecordError(err) {
				return err
			}
			d.log.WithError(err).WithField("offset", off).Warn("skipping undecodable record")
			next = off + 4
		}
		pos = max(next, off+4)
	}
}

// isRecordError reports whether err describes bad record bytes rather than
// a failing stream.
func isRecordError(err error) bool {
	return errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrInvalidUTF8)
}

// collectDescriptors decodes every data descriptor candidate in one pass and
// keys it by the payload start its compressed size implies. The first
// candidate in stream order wins for a given start; classic sizes are
// tried before zip64 sizes.
func (d *decoder) collectDescriptors(r io.ReadSeeker) (map[int64]internal.DataDescriptor, error) {
	found := make(map[int64]internal.DataDescriptor)
	err := d.scanAll(r, internal.DataDescriptorSignature, func(off int64) (int64, error) {
		for _, zip64 := range []bool{false, true} {
			dd, err := internal.ReadDataDescriptor(r, off, zip64)
			if err != nil || dd.CompressedSize > uint64(off) {
				continue
			}
			start := off - int64(dd.CompressedSize)
			if _, ok := found[start]; !ok {
				found[start] = dd
			}
		}
		return off + 4, nil
	})
	return found, err
}

// resolveDescriptor fills the placeholder crc32 and sizes of h from the
// first data descriptor whose compressed size matches its distance from the
// payload start. Headers without a matching descriptor keep their placeholders.
func (d *decoder) resolveDescriptor(h *LocalFileHeader, descriptors map[int64]internal.DataDescriptor) {
	if dd, ok := descriptors[h.DataOffset]; ok {
		h.CRC32 = dd.CRC32
		h.CompressedSize = dd.CompressedSize
		h.UncompressedSize = dd.UncompressedSize
		return
	}

	d.log.WithFields(logrus.Fields{
		"offset": h.Offset,
		"name":   h.Name,
	}).Warn("no data descriptor matches local file header")
}

// DumpRecovered returns the stored payload bytes of a recovered record.
// End Of Central Directory records hold no payload.
func DumpRecovered(r io.ReadSeeker, re RecoveryEntry, opts ...Option) ([]byte, error) {
	r = newSourceReadSeeker(r)
	d := newDecoder(newConfig(opts))

	switch v := re.(type) {
	case *Entry:
		h, err := d.localHeader(r, int64(v.LocalHeaderOffset))
		if err != nil {
			return nil, err
		}
		return readPayload(r, h.DataOffset, v.CompressedSize)
	case *LocalFileHeader:
		return readPayload(r, v.DataOffset, v.CompressedSize)
	case *EndOfCentralDirectory:
		return nil, fmt.Errorf("%w: end of central directory at offset %d holds no payload", ErrInvalidEntry, v.Offset)
	}
	return nil, fmt.Errorf("%w: unknown recovery record %T", ErrInvalidEntry, re)
}
