// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/zipindex/internal"
	"github.com/lemon4ksan/zipindex/internal/sys"
)

// eocdSearchWindow covers the fixed record plus the largest possible comment.
const eocdSearchWindow = math.MaxUint16 + internal.EndOfCentralDirLen

// DecodeEOCD locates and decodes the End Of Central Directory record of r.
// When the record is saturated the Zip64 locator and record are decoded and
// the widened values replace the 16 and 32-bit ones.
func DecodeEOCD(r io.ReadSeeker, opts ...Option) (*EndOfCentralDirectory, error) {
	return newDecoder(newConfig(opts)).eocd(newSourceReadSeeker(r))
}

// DecodeCentralDirectoryEntry decodes the central directory record at off.
func DecodeCentralDirectoryEntry(r io.ReadSeeker, off int64, opts ...Option) (*Entry, error) {
	return newDecoder(newConfig(opts)).entry(newSourceReadSeeker(r), off)
}

// DecodeLocalFileHeader decodes the local file header at off. When flag bit 3
// is set its crc32 and sizes are zero placeholders.
func DecodeLocalFileHeader(r io.ReadSeeker, off int64, opts ...Option) (*LocalFileHeader, error) {
	return newDecoder(newConfig(opts)).localHeader(newSourceReadSeeker(r), off)
}

// DataDescriptor carries the crc32 and sizes that trail a payload when
// flag bit 3 is set.
type DataDescriptor struct {
	Offset           int64
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// DecodeDataDescriptor decodes the data descriptor at off. Its leading
// signature is optional. zip64 selects 8-byte size fields.
func DecodeDataDescriptor(r io.ReadSeeker, off int64, zip64 bool) (*DataDescriptor, error) {
	dd, err := internal.ReadDataDescriptor(newSourceReadSeeker(r), off, zip64)
	if err != nil {
		return nil, err
	}
	return &DataDescriptor{
		Offset:           dd.Offset,
		CRC32:            dd.CRC32,
		CompressedSize:   dd.CompressedSize,
		UncompressedSize: dd.UncompressedSize,
	}, nil
}

// decoder turns raw records into public values according to a Config.
type decoder struct {
	cfg Config
	log logrus.FieldLogger
}

func newDecoder(cfg Config) *decoder {
	return &decoder{cfg: cfg, log: cfg.Logger}
}

func (d *decoder) eocd(r io.ReadSeeker) (*EndOfCentralDirectory, error) {
	off, err := d.findEOCD(r)
	if err != nil {
		return nil, err
	}

	raw, err := internal.ReadEndOfCentralDir(r, off)
	if err != nil {
		return nil, fmt.Errorf("read end of central directory: %w", err)
	}
	end := newEndOfCentralDirectory(raw, d.cfg.Filenames)

	d.log.WithFields(logrus.Fields{
		"offset":  end.Offset,
		"entries": end.TotalEntries,
		"cd":      end.CentralDirOffset,
	}).Debug("decoded end of central directory")

	if raw.IsSaturated() {
		if err := d.widenZip64(r, end); err != nil {
			return nil, err
		}
	}
	return end, nil
}

func (d *decoder) findEOCD(r io.ReadSeeker) (int64, error) {
	var (
		off int64
		err error
	)

	switch d.cfg.EOCDScan {
	case ScanForward:
		off, err = internal.FindSignature(r, internal.EndOfCentralDirSignature, 0, -1)
	default:
		var size int64
		if size, err = internal.StreamSize(r); err != nil {
			return 0, err
		}
		off, err = internal.FindLastSignature(r, internal.EndOfCentralDirSignature, eocdSearchWindow, func(candidate int64) bool {
			return eocdFits(r, candidate, size)
		})
	}

	if internal.IsNoSignature(err) {
		return 0, ErrEOCDNotFound
	}
	return off, err
}

// eocdFits reports whether a record at off, comment included, ends within size.
func eocdFits(r io.ReadSeeker, off, size int64) bool {
	if off+internal.EndOfCentralDirLen > size {
		return false
	}
	if err := internal.SeekTo(r, off+internal.EndOfCentralDirLen-2); err != nil {
		return false
	}
	n, err := internal.ReadUint16(r)
	if err != nil {
		return false
	}
	return off+internal.EndOfCentralDirLen+int64(n) <= size
}

// widenZip64 replaces saturated fields of end with the Zip64 record values.
// A missing locator is not an error: the archive may legitimately hold
// exactly 65535 entries.
func (d *decoder) widenZip64(r io.ReadSeeker, end *EndOfCentralDirectory) error {
	locOff := end.Offset - internal.Zip64LocatorLen
	if locOff < 0 {
		return nil
	}

	loc, err := internal.ReadZip64EndOfCentralDirLocator(r, locOff)
	if err != nil {
		d.log.WithField("offset", locOff).Debug("no zip64 locator before saturated end of central directory")
		return nil
	}

	zoff := int64(loc.Zip64EndOfCentralDirOffset)
	if zoff < 0 || zoff > locOff {
		return &EntryError{Offset: locOff, Err: fmt.Errorf("zip64 record offset %d out of range", loc.Zip64EndOfCentralDirOffset)}
	}

	z64, err := internal.ReadZip64EndOfCentralDir(r, zoff)
	if err != nil {
		return fmt.Errorf("read zip64 end of central directory: %w", err)
	}

	end.EntriesOnDisk = z64.TotalNumberOfEntriesOnThisDisk
	end.TotalEntries = z64.TotalNumberOfEntries
	end.CentralDirSize = z64.CentralDirSize
	end.CentralDirOffset = z64.CentralDirOffset
	end.Zip64 = true
	end.dirEnd = zoff

	d.log.WithFields(logrus.Fields{
		"offset":  zoff,
		"entries": end.TotalEntries,
	}).Debug("decoded zip64 end of central directory")
	return nil
}

func (d *decoder) entry(r io.ReadSeeker, off int64) (*Entry, error) {
	raw, err := internal.ReadCentralDirEntry(r, off)
	if err != nil {
		return nil, err
	}

	name, err := d.cfg.Filenames.decodeName(raw.Filename, raw.GeneralPurposeBitFlag)
	if err != nil {
		return nil, fmt.Errorf("central directory entry at offset %d: %w", off, err)
	}

	e := &Entry{
		Offset:            off,
		VersionMadeBy:     raw.VersionMadeBy,
		VersionNeeded:     raw.VersionNeededToExtract,
		Flags:             raw.GeneralPurposeBitFlag,
		Method:            CompressionMethod(raw.CompressionMethod),
		ModifiedTime:      raw.LastModFileTime,
		ModifiedDate:      raw.LastModFileDate,
		CRC32:             raw.CRC32,
		CompressedSize:    uint64(raw.CompressedSize),
		UncompressedSize:  uint64(raw.UncompressedSize),
		Name:              name,
		Extra:             raw.ExtraField,
		Comment:           d.cfg.Filenames.decodeComment(raw.Comment, raw.GeneralPurposeBitFlag),
		DiskStart:         raw.DiskNumberStart,
		InternalAttrs:     raw.InternalFileAttributes,
		ExternalAttrs:     raw.ExternalFileAttributes,
		LocalHeaderOffset: uint64(raw.LocalHeaderOffset),
		Len:               raw.Len(),
		rawName:           raw.Filename,
	}
	widenZip64Entry(e, raw)
	e.isDir = isDirectory(e, d.cfg.Directories)

	d.log.WithFields(logrus.Fields{
		"offset": off,
		"name":   e.Name,
		"method": e.Method,
	}).Debug("decoded central directory entry")

	return e, nil
}

// widenZip64Entry reads the 64-bit values of saturated fields from the Zip64
// extra field. Only saturated fields are present, in a fixed order.
func widenZip64Entry(e *Entry, raw internal.CentralDirectory) {
	zip64Data, ok := internal.ParseExtraField(raw.ExtraField)[Zip64ExtraFieldTag]
	if !ok {
		return
	}

	pos := 0
	next := func() (uint64, bool) {
		if len(zip64Data) < pos+8 {
			return 0, false
		}
		v := binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
		pos += 8
		return v, true
	}

	if raw.UncompressedSize == math.MaxUint32 {
		if v, ok := next(); ok {
			e.UncompressedSize = v
		}
	}
	if raw.CompressedSize == math.MaxUint32 {
		if v, ok := next(); ok {
			e.CompressedSize = v
		}
	}
	if raw.LocalHeaderOffset == math.MaxUint32 {
		if v, ok := next(); ok {
			e.LocalHeaderOffset = v
		}
	}
}

func isDirectory(e *Entry, rule DirectoryRule) bool {
	if rule == DirByAttributes {
		if strings.HasSuffix(e.rawName, "/") || strings.HasSuffix(e.rawName, "\\") {
			return true
		}
		host := e.HostSystem()
		if host.IsUnix() && (e.ExternalAttrs>>16)&sys.S_IFMT == sys.S_IFDIR {
			return true
		}
		return e.ExternalAttrs&sys.DOSDirectory != 0
	}
	return e.UncompressedSize == 0
}

func (d *decoder) localHeader(r io.ReadSeeker, off int64) (*LocalFileHeader, error) {
	raw, err := internal.ReadLocalFileHeader(r, off)
	if err != nil {
		return nil, err
	}

	name, err := d.cfg.Filenames.decodeName(raw.Filename, raw.GeneralPurposeBitFlag)
	if err != nil {
		return nil, fmt.Errorf("local file header at offset %d: %w", off, err)
	}

	h := &LocalFileHeader{
		Offset:           off,
		VersionNeeded:    raw.VersionNeededToExtract,
		Flags:            raw.GeneralPurposeBitFlag,
		Method:           CompressionMethod(raw.CompressionMethod),
		ModifiedTime:     raw.LastModFileTime,
		ModifiedDate:     raw.LastModFileDate,
		CRC32:            raw.CRC32,
		CompressedSize:   uint64(raw.CompressedSize),
		UncompressedSize: uint64(raw.UncompressedSize),
		Name:             name,
		Extra:            raw.ExtraField,
		DataOffset:       raw.DataOffset(),
		rawName:          raw.Filename,
	}

	if zip64Data, ok := internal.ParseExtraField(raw.ExtraField)[Zip64ExtraFieldTag]; ok && !h.HasDataDescriptor() {
		// Local Zip64 fields always hold both sizes.
		if len(zip64Data) >= 16 && raw.UncompressedSize == math.MaxUint32 && raw.CompressedSize == math.MaxUint32 {
			h.UncompressedSize = binary.LittleEndian.Uint64(zip64Data[0:8])
			h.CompressedSize = binary.LittleEndian.Uint64(zip64Data[8:16])
		}
	}

	d.log.WithFields(logrus.Fields{
		"offset": off,
		"name":   h.Name,
	}).Debug("decoded local file header")

	return h, nil
}
