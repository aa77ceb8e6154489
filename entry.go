// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"encoding/binary"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/lemon4ksan/zipindex/internal"
	"github.com/lemon4ksan/zipindex/internal/sys"
)

// Extra field tags interpreted by this package.
const (
	// Zip64ExtraFieldTag identifies the extra field that contains 64-bit size
	// and offset information for files exceeding 4GB limits.
	Zip64ExtraFieldTag uint16 = internal.Zip64ExtraFieldTag

	// NTFSFieldTag identifies the extra field that stores high-precision
	// NTFS file timestamps with 100-nanosecond resolution.
	NTFSFieldTag uint16 = 0x000A

	// ExtendedTimestampTag identifies the Info-ZIP extended timestamp field
	// holding Unix modification time.
	ExtendedTimestampTag uint16 = 0x5455
)

// Entry is one archive member as described by its central directory record.
// Entries are owned by the index and must be treated as read-only.
type Entry struct {
	Offset            int64 // Offset of the central directory record itself
	VersionMadeBy     uint16
	VersionNeeded     uint16
	Flags             uint16
	Method            CompressionMethod
	ModifiedTime      uint16 // MS-DOS time
	ModifiedDate      uint16 // MS-DOS date
	CRC32             uint32
	CompressedSize    uint64
	UncompressedSize  uint64
	Name              string // Path as stored, decoded by the filename policy
	Extra             []byte
	Comment           string
	DiskStart         uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	LocalHeaderOffset uint64
	Len               int64 // Bytes the record occupies on disk

	isDir   bool
	rawName string
}

// IsDir reports whether the entry is a directory under the directory rule
// the index was built with.
func (e *Entry) IsDir() bool { return e.isDir }

// Key returns the normalized path the entry is indexed under.
func (e *Entry) Key() string { return normalizeName(e.Name) }

// HostSystem returns the system the entry was created on.
func (e *Entry) HostSystem() sys.HostSystem { return sys.HostOf(e.VersionMadeBy) }

// Mode returns the permission and type bits derived from external attributes.
// The directory bit always follows IsDir.
func (e *Entry) Mode() fs.FileMode {
	var mode fs.FileMode
	host := e.HostSystem()
	unixMode := e.ExternalAttrs >> 16

	switch {
	case host.IsUnix() && unixMode != 0:
		mode = fs.FileMode(unixMode & 0777)

		switch unixMode & sys.S_IFMT {
		case sys.S_IFLNK:
			mode |= fs.ModeSymlink
		case sys.S_IFSOCK:
			mode |= fs.ModeSocket
		case sys.S_IFIFO:
			mode |= fs.ModeNamedPipe
		case sys.S_IFCHR:
			mode |= fs.ModeDevice | fs.ModeCharDevice
		case sys.S_IFBLK:
			mode |= fs.ModeDevice
		}
		if unixMode&sys.S_ISUID != 0 {
			mode |= fs.ModeSetuid
		}
		if unixMode&sys.S_ISGID != 0 {
			mode |= fs.ModeSetgid
		}
		if unixMode&sys.S_ISVTX != 0 {
			mode |= fs.ModeSticky
		}
	case host.IsWindows():
		mode = 0644
		if e.ExternalAttrs&sys.DOSReadOnly != 0 {
			mode &^= 0222 // Remove write permission (a-w)
		}
	default:
		mode = 0644
	}

	if e.isDir {
		perm := mode.Perm()
		if !host.IsUnix() || perm == 0 {
			perm = 0755
		}
		return fs.ModeDir | perm
	}
	return mode
}

// ModTime returns the best available modification time: the extended
// timestamp field, then the NTFS field, then the MS-DOS date and time.
func (e *Entry) ModTime() time.Time {
	extra := internal.ParseExtraField(e.Extra)

	if data, ok := extra[ExtendedTimestampTag]; ok && len(data) >= 5 && data[0]&0x01 != 0 {
		return time.Unix(int64(int32(binary.LittleEndian.Uint32(data[1:5]))), 0).UTC()
	}
	if mtime, _, _, ok := parseNTFSTimes(extra[NTFSFieldTag]); ok && mtime != 0 {
		return winFiletimeToTime(mtime)
	}
	return msDosToTime(e.ModifiedDate, e.ModifiedTime)
}

// FsTime returns the NTFS timestamps (Modification, Access, Creation) if available.
func (e *Entry) FsTime() (mtime, atime, ctime time.Time) {
	m, a, c, ok := parseNTFSTimes(internal.ParseExtraField(e.Extra)[NTFSFieldTag])
	if !ok {
		return
	}
	return winFiletimeToTime(m), winFiletimeToTime(a), winFiletimeToTime(c)
}

// HasExtraField checks whether an extra field with the specified tag exists.
func (e *Entry) HasExtraField(tag uint16) bool {
	_, ok := internal.ParseExtraField(e.Extra)[tag]
	return ok
}

// GetExtraField retrieves the raw bytes of an extra field by its tag ID.
func (e *Entry) GetExtraField(tag uint16) []byte {
	return internal.ParseExtraField(e.Extra)[tag]
}

// IsEncrypted reports whether the entry is encrypted. Encrypted entries can
// be listed and dumped raw but not extracted.
func (e *Entry) IsEncrypted() bool { return e.Flags&0x1 != 0 }

// LocalFileHeader is the header immediately preceding an entry's payload.
// It is decoded on demand and never cached by the Reader.
type LocalFileHeader struct {
	Offset           int64
	VersionNeeded    uint16
	Flags            uint16
	Method           CompressionMethod
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32 // Zero placeholder when HasDataDescriptor
	CompressedSize   uint64 // Zero placeholder when HasDataDescriptor
	UncompressedSize uint64 // Zero placeholder when HasDataDescriptor
	Name             string
	Extra            []byte
	DataOffset       int64 // Absolute offset of the first payload byte

	rawName string
}

// HasDataDescriptor reports whether crc32 and sizes follow the payload,
// in which case only the central directory values are authoritative.
func (h *LocalFileHeader) HasDataDescriptor() bool {
	return h.Flags&internal.FlagDataDescriptor != 0
}

// Key returns the normalized path of the header's filename.
func (h *LocalFileHeader) Key() string { return normalizeName(h.Name) }

// ModTime returns the MS-DOS modification time of the header.
func (h *LocalFileHeader) ModTime() time.Time {
	return msDosToTime(h.ModifiedDate, h.ModifiedTime)
}

// EndOfCentralDirectory is the archive trailer locating the central directory.
// Counts, size and offset are widened from the Zip64 record when present.
type EndOfCentralDirectory struct {
	Offset           int64
	DiskNumber       uint16
	CentralDirDisk   uint16
	EntriesOnDisk    uint64
	TotalEntries     uint64
	CentralDirSize   uint64
	CentralDirOffset uint64
	Comment          string
	Zip64            bool

	// dirEnd is the first byte after the space the central directory may occupy.
	dirEnd int64
}

func newEndOfCentralDirectory(raw internal.EndOfCentralDirectory, policy FilenamePolicy) *EndOfCentralDirectory {
	return &EndOfCentralDirectory{
		Offset:           raw.Offset,
		DiskNumber:       raw.ThisDiskNum,
		CentralDirDisk:   raw.DiskNumWithTheStartOfCentralDir,
		EntriesOnDisk:    uint64(raw.TotalNumberOfEntriesOnThisDisk),
		TotalEntries:     uint64(raw.TotalNumberOfEntries),
		CentralDirSize:   uint64(raw.CentralDirSize),
		CentralDirOffset: uint64(raw.CentralDirOffset),
		Comment:          policy.decodeComment(raw.Comment, 0),
		dirEnd:           raw.Offset,
	}
}

// normalizeName converts a stored path into an index key: forward slashes,
// cleaned, without leading or trailing separators.
func normalizeName(name string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
}

// parseNTFSTimes decodes the first attribute of an NTFS extra field.
func parseNTFSTimes(data []byte) (mtime, atime, ctime uint64, ok bool) {
	// 4 reserved bytes, then tag 0x0001 of size 24 with three FILETIMEs.
	if len(data) < 32 {
		return 0, 0, 0, false
	}
	if binary.LittleEndian.Uint16(data[4:6]) != 0x0001 || binary.LittleEndian.Uint16(data[6:8]) < 24 {
		return 0, 0, 0, false
	}
	return binary.LittleEndian.Uint64(data[8:16]),
		binary.LittleEndian.Uint64(data[16:24]),
		binary.LittleEndian.Uint64(data[24:32]),
		true
}
