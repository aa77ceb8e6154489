// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipindex/internal"
	"github.com/lemon4ksan/zipindex/internal/sys"
)

// fixtureTime is stamped on every fixture entry. Seconds are even so the
// MS-DOS encoding is exact.
var fixtureTime = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

// fixtureFile describes one entry written by a fixture.
type fixtureFile struct {
	Name          string
	Data          []byte
	Codec         Codec // nil stores Data as-is
	Flags         uint16
	MadeBy        uint16
	ExternalAttrs uint32
	Extra         []byte
	Descriptor    bool // write crc32 and sizes after the payload
	LocalOnly     bool // omit the central directory record
}

// fixture assembles archives record by record.
type fixture struct {
	t       testing.TB
	buf     bytes.Buffer
	central []internal.CentralDirectory
	comment string
}

func newFixture(t testing.TB) *fixture {
	return &fixture{t: t}
}

// raw appends arbitrary bytes at the current position.
func (f *fixture) raw(b []byte) *fixture {
	f.buf.Write(b)
	return f
}

func (f *fixture) store(name, data string) *fixture {
	return f.file(fixtureFile{Name: name, Data: []byte(data)})
}

func (f *fixture) dir(name string) *fixture {
	return f.file(fixtureFile{Name: name, ExternalAttrs: sys.DOSDirectory})
}

func (f *fixture) withComment(c string) *fixture {
	f.comment = c
	return f
}

func (f *fixture) file(ff fixtureFile) *fixture {
	f.t.Helper()

	method := Stored
	payload := ff.Data
	if ff.Codec != nil {
		var err error
		method = ff.Codec.Method()
		payload, err = ff.Codec.Compress(ff.Data)
		require.NoError(f.t, err)
		if method == LZMA {
			ff.Flags |= lzmaEOSFlag
		}
	}
	if ff.Descriptor {
		ff.Flags |= internal.FlagDataDescriptor
	}
	if ff.MadeBy == 0 {
		ff.MadeBy = 20 // MS-DOS host, version 2.0
	}

	date, tm := timeToMsDos(fixtureTime)
	crc := crc32.ChecksumIEEE(ff.Data)
	offset := f.buf.Len()

	lfh := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  ff.Flags,
		CompressionMethod:      uint16(method),
		LastModFileTime:        tm,
		LastModFileDate:        date,
		Filename:               ff.Name,
		ExtraField:             ff.Extra,
	}
	if !ff.Descriptor {
		lfh.CRC32 = crc
		lfh.CompressedSize = uint32(len(payload))
		lfh.UncompressedSize = uint32(len(ff.Data))
	}
	f.buf.Write(lfh.Encode())
	f.buf.Write(payload)

	if ff.Descriptor {
		var dd [16]byte
		binary.LittleEndian.PutUint32(dd[0:4], internal.DataDescriptorSignature)
		binary.LittleEndian.PutUint32(dd[4:8], crc)
		binary.LittleEndian.PutUint32(dd[8:12], uint32(len(payload)))
		binary.LittleEndian.PutUint32(dd[12:16], uint32(len(ff.Data)))
		f.buf.Write(dd[:])
	}

	if !ff.LocalOnly {
		f.central = append(f.central, internal.CentralDirectory{
			VersionMadeBy:          ff.MadeBy,
			VersionNeededToExtract: 20,
			GeneralPurposeBitFlag:  ff.Flags,
			CompressionMethod:      uint16(method),
			LastModFileTime:        tm,
			LastModFileDate:        date,
			CRC32:                  crc,
			CompressedSize:         uint32(len(payload)),
			UncompressedSize:       uint32(len(ff.Data)),
			ExternalFileAttributes: ff.ExternalAttrs,
			LocalHeaderOffset:      uint32(offset),
			Filename:               ff.Name,
			ExtraField:             ff.Extra,
		})
	}
	return f
}

// centralDir appends every pending central directory record and returns
// the directory offset and size.
func (f *fixture) centralDir() (int, int) {
	off := f.buf.Len()
	for _, cd := range f.central {
		f.buf.Write(cd.Encode())
	}
	return off, f.buf.Len() - off
}

// bytes finishes the archive with a classic End Of Central Directory record.
func (f *fixture) bytes() []byte {
	off, size := f.centralDir()
	f.buf.Write(internal.EncodeEndOfCentralDirRecord(len(f.central), uint64(size), uint64(off), f.comment))
	return f.buf.Bytes()
}

// withoutEOCD finishes the archive after the central directory.
func (f *fixture) withoutEOCD() []byte {
	f.centralDir()
	return f.buf.Bytes()
}

// zip64 finishes the archive with a Zip64 record, its locator and a
// saturated classic record.
func (f *fixture) zip64() []byte {
	off, size := f.centralDir()
	z := f.buf.Len()
	f.buf.Write(internal.EncodeZip64EndOfCentralDirRecord(uint64(len(f.central)), uint64(size), uint64(off)))
	f.buf.Write(internal.EncodeZip64EndOfCentralDirLocator(uint64(z)))
	f.buf.Write(internal.EncodeEndOfCentralDirRecord(math.MaxUint16, math.MaxUint32, math.MaxUint32, f.comment))
	return f.buf.Bytes()
}

// timeToMsDos encodes t as an MS-DOS date and time, clamping the year to 1980..2107.
func timeToMsDos(t time.Time) (dosDate uint16, dosTime uint16) {
	year := min(max(t.Year()-1980, 0), 127)
	month := uint16(t.Month())
	day := uint16(t.Day())
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second())

	dosDate = uint16(year)<<9 | uint16(month)<<5 | day
	dosTime = uint16(hour)<<11 | uint16(minute)<<5 | uint16(second/2)
	return dosDate, dosTime
}

// openBytes indexes data and closes the Reader when the test ends.
func openBytes(t testing.TB, data []byte, opts ...Option) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func mustDeflate(t testing.TB) *DeflateCodec {
	t.Helper()
	c, err := NewDeflateCodec(DeflateNormal)
	require.NoError(t, err)
	return c
}

func mustZstd(t testing.TB) *ZstdCodec {
	t.Helper()
	c, err := NewZstdCodec(ZstdDefaultLevel)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func mustLZMA(t testing.TB) *LZMACodec {
	t.Helper()
	c, err := NewLZMACodec(LZMADefaultDictCap)
	require.NoError(t, err)
	return c
}
