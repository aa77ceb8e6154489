// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Each record type must be identified using a header signature that identifies the record type.
// Signature values begin with the two byte constant marker of 0x4b50, representing the characters "PK".
const (
	CentralDirectorySignature            uint32 = 0x02014b50
	LocalFileHeaderSignature             uint32 = 0x04034b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
	DataDescriptorSignature              uint32 = 0x08074b50
)

// Fixed record sizes, signature included.
const (
	LocalFileHeaderLen      = 30
	CentralDirectoryLen     = 46
	EndOfCentralDirLen      = 22
	Zip64EndOfCentralDirLen = 56
	Zip64LocatorLen         = 20
)

// FlagDataDescriptor marks entries whose crc32 and sizes follow the payload.
const FlagDataDescriptor uint16 = 1 << 3

// FlagUTF8 marks entries whose filename and comment are UTF-8.
const FlagUTF8 uint16 = 1 << 11

// Zip64ExtraFieldTag identifies the extra field carrying 64-bit sizes and offsets.
const Zip64ExtraFieldTag uint16 = 0x0001

type LocalFileHeader struct {
	Offset                 int64
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	Filename               string
	ExtraField             []byte
}

// DataOffset is the absolute offset of the first payload byte.
func (h LocalFileHeader) DataOffset() int64 {
	return h.Offset + LocalFileHeaderLen + int64(len(h.Filename)) + int64(len(h.ExtraField))
}

// HasDataDescriptor reports whether crc32 and sizes were deferred to a trailing record.
func (h LocalFileHeader) HasDataDescriptor() bool {
	return h.GeneralPurposeBitFlag&FlagDataDescriptor != 0
}

// ReadLocalFileHeader decodes the local file header at off. When bit 3 of the
// flags is set the crc32 and size fields are returned as zero placeholders.
func ReadLocalFileHeader(r io.ReadSeeker, off int64) (LocalFileHeader, error) {
	buf, err := readRecord(r, off, LocalFileHeaderSignature, LocalFileHeaderLen)
	if err != nil {
		return LocalFileHeader{}, err
	}

	h := LocalFileHeader{
		Offset:                 off,
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
	}
	if !h.HasDataDescriptor() {
		h.CRC32 = binary.LittleEndian.Uint32(buf[14:18])
		h.CompressedSize = binary.LittleEndian.Uint32(buf[18:22])
		h.UncompressedSize = binary.LittleEndian.Uint32(buf[22:26])
	}

	filenameLen := int(binary.LittleEndian.Uint16(buf[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(buf[28:30]))

	name, err := ReadBytes(r, filenameLen)
	if err != nil {
		return LocalFileHeader{}, entryError(off, "read filename", err)
	}
	h.Filename = string(name)

	if h.ExtraField, err = ReadBytes(r, extraLen); err != nil {
		return LocalFileHeader{}, entryError(off, "read extra field", err)
	}

	return h, nil
}

func (h LocalFileHeader) Encode() []byte {
	// Fixed size (30 bytes) + variable filename length
	size := LocalFileHeaderLen + len(h.Filename) + len(h.ExtraField)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.ExtraField)))

	copy(buf[30:], h.Filename)
	copy(buf[30+len(h.Filename):], h.ExtraField)

	return buf
}

type CentralDirectory struct {
	Offset                 int64
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             []byte
	Comment                string
}

// Len is the number of bytes the record occupies on disk.
func (d CentralDirectory) Len() int64 {
	return CentralDirectoryLen + int64(len(d.Filename)) + int64(len(d.ExtraField)) + int64(len(d.Comment))
}

// ReadCentralDirEntry decodes the central directory record at off.
func ReadCentralDirEntry(r io.ReadSeeker, off int64) (CentralDirectory, error) {
	buf, err := readRecord(r, off, CentralDirectorySignature, CentralDirectoryLen)
	if err != nil {
		return CentralDirectory{}, err
	}

	entry := CentralDirectory{
		Offset:                 off,
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[34:36]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[36:38]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[42:46]),
	}

	filenameLen := int(binary.LittleEndian.Uint16(buf[28:30]))
	extraLen := int(binary.LittleEndian.Uint16(buf[30:32]))
	commentLen := int(binary.LittleEndian.Uint16(buf[32:34]))

	name, err := ReadBytes(r, filenameLen)
	if err != nil {
		return CentralDirectory{}, entryError(off, "read filename", err)
	}
	entry.Filename = string(name)

	if entry.ExtraField, err = ReadBytes(r, extraLen); err != nil {
		return CentralDirectory{}, entryError(off, "read extra field", err)
	}

	comment, err := ReadBytes(r, commentLen)
	if err != nil {
		return CentralDirectory{}, entryError(off, "read comment", err)
	}
	entry.Comment = string(comment)

	return entry, nil
}

func (d CentralDirectory) Encode() []byte {
	buf := make([]byte, d.Len())

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(d.ExtraField)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(d.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], d.ExtraField)
	copy(buf[offset:], d.Comment)

	return buf
}

type EndOfCentralDirectory struct {
	Offset                          int64
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	Comment                         string
}

// ReadEndOfCentralDir decodes the end of central directory record at off.
func ReadEndOfCentralDir(r io.ReadSeeker, off int64) (EndOfCentralDirectory, error) {
	buf, err := readRecord(r, off, EndOfCentralDirSignature, EndOfCentralDirLen)
	if err != nil {
		return EndOfCentralDirectory{}, err
	}

	end := EndOfCentralDirectory{
		Offset:                          off,
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[4:6]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[6:8]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[8:10]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[16:20]),
	}

	comment, err := ReadBytes(r, int(binary.LittleEndian.Uint16(buf[20:22])))
	if err != nil {
		return EndOfCentralDirectory{}, entryError(off, "read comment", err)
	}
	end.Comment = string(comment)

	return end, nil
}

// IsSaturated reports whether any field overflowed into the Zip64 record.
func (e EndOfCentralDirectory) IsSaturated() bool {
	return e.TotalNumberOfEntries == math.MaxUint16 ||
		e.CentralDirSize == math.MaxUint32 ||
		e.CentralDirOffset == math.MaxUint32
}

func EncodeEndOfCentralDirRecord(entriesNum int, centralDirSize uint64, centralDirOffset uint64, comment string) []byte {
	commentLen := min(len(comment), math.MaxUint16)
	buf := make([]byte, EndOfCentralDirLen+commentLen)

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(min(math.MaxUint32, centralDirSize)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(min(math.MaxUint32, centralDirOffset)))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(commentLen))

	copy(buf[22:], comment[:commentLen])

	return buf
}

type Zip64EndOfCentralDirectory struct {
	Offset                          int64
	Size                            uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	ThisDiskNum                     uint32
	DiskNumWithTheStartOfCentralDir uint32
	TotalNumberOfEntriesOnThisDisk  uint64
	TotalNumberOfEntries            uint64
	CentralDirSize                  uint64
	CentralDirOffset                uint64
}

func ReadZip64EndOfCentralDir(r io.ReadSeeker, off int64) (Zip64EndOfCentralDirectory, error) {
	buf, err := readRecord(r, off, Zip64EndOfCentralDirSignature, Zip64EndOfCentralDirLen)
	if err != nil {
		return Zip64EndOfCentralDirectory{}, err
	}
	return Zip64EndOfCentralDirectory{
		Offset:                          off,
		Size:                            binary.LittleEndian.Uint64(buf[4:12]),
		VersionMadeBy:                   binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeededToExtract:          binary.LittleEndian.Uint16(buf[14:16]),
		ThisDiskNum:                     binary.LittleEndian.Uint32(buf[16:20]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint32(buf[20:24]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint64(buf[24:32]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint64(buf[32:40]),
		CentralDirSize:                  binary.LittleEndian.Uint64(buf[40:48]),
		CentralDirOffset:                binary.LittleEndian.Uint64(buf[48:56]),
	}, nil
}

func EncodeZip64EndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64) []byte {
	buf := make([]byte, Zip64EndOfCentralDirLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], Zip64EndOfCentralDirLen-12)
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

type Zip64EndOfCentralDirectoryLocator struct {
	EndOfCentralDirStartDiskNum uint32
	Zip64EndOfCentralDirOffset  uint64
	TotalNumberOfDisks          uint32
}

func ReadZip64EndOfCentralDirLocator(r io.ReadSeeker, off int64) (Zip64EndOfCentralDirectoryLocator, error) {
	buf, err := readRecord(r, off, Zip64EndOfCentralDirLocatorSignature, Zip64LocatorLen)
	if err != nil {
		return Zip64EndOfCentralDirectoryLocator{}, err
	}
	return Zip64EndOfCentralDirectoryLocator{
		EndOfCentralDirStartDiskNum: binary.LittleEndian.Uint32(buf[4:8]),
		Zip64EndOfCentralDirOffset:  binary.LittleEndian.Uint64(buf[8:16]),
		TotalNumberOfDisks:          binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

func EncodeZip64EndOfCentralDirLocator(endOfCentralDirOffset uint64) []byte {
	buf := make([]byte, Zip64LocatorLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], endOfCentralDirOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}

// DataDescriptor trails the payload of entries with bit 3 set.
// The leading signature is optional on the wire.
type DataDescriptor struct {
	Offset           int64
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// ReadDataDescriptor decodes the data descriptor at off. zip64 selects
// 8-byte size fields.
func ReadDataDescriptor(r io.ReadSeeker, off int64, zip64 bool) (DataDescriptor, error) {
	if err := SeekTo(r, off); err != nil {
		return DataDescriptor{}, err
	}

	n := 12
	if zip64 {
		n = 20
	}
	body, err := ReadBytes(r, n)
	if err != nil {
		return DataDescriptor{}, entryError(off, "read data descriptor", err)
	}
	if binary.LittleEndian.Uint32(body[0:4]) == DataDescriptorSignature {
		tail, err := ReadBytes(r, 4)
		if err != nil {
			return DataDescriptor{}, entryError(off, "read data descriptor", err)
		}
		body = append(body[4:], tail...)
	}

	dd := DataDescriptor{Offset: off, CRC32: binary.LittleEndian.Uint32(body[0:4])}
	if zip64 {
		dd.CompressedSize = binary.LittleEndian.Uint64(body[4:12])
		dd.UncompressedSize = binary.LittleEndian.Uint64(body[12:20])
	} else {
		dd.CompressedSize = uint64(binary.LittleEndian.Uint32(body[4:8]))
		dd.UncompressedSize = uint64(binary.LittleEndian.Uint32(body[8:12]))
	}
	return dd, nil
}

// ParseExtraField converts raw extra field bytes into a map keyed by tag IDs.
// Values exclude the 4-byte tag and size header. Truncated trailing fields are ignored.
func ParseExtraField(extraField []byte) map[uint16][]byte {
	m := make(map[uint16][]byte)

	for offset := 0; offset+4 <= len(extraField); {
		tag := binary.LittleEndian.Uint16(extraField[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(extraField[offset+2 : offset+4]))

		offset += 4
		if offset+size > len(extraField) {
			break
		}

		m[tag] = extraField[offset : offset+size]
		offset += size
	}
	return m
}

// readRecord seeks to off, reads a fixed-size record of n bytes and checks
// its leading signature.
func readRecord(r io.ReadSeeker, off int64, sig uint32, n int) ([]byte, error) {
	if err := SeekTo(r, off); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if read >= 4 {
		if got := binary.LittleEndian.Uint32(buf[0:4]); got != sig {
			return nil, &SignatureError{Offset: off, Got: got, Want: sig}
		}
	}
	if err != nil {
		if isShortRead(err) {
			return nil, &EntryError{Offset: off, Err: io.ErrUnexpectedEOF}
		}
		return nil, err
	}
	return buf, nil
}

func entryError(off int64, op string, err error) error {
	if isShortRead(err) {
		return &EntryError{Offset: off, Err: fmt.Errorf("%s: %w", op, io.ErrUnexpectedEOF)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
