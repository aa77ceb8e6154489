// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"encoding/binary"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lemon4ksan/zipindex/internal/sys"
)

func extraField(tag uint16, data []byte) []byte {
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint16(buf[0:2], tag)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(data)))
	copy(buf[4:], data)
	return buf
}

func ntfsExtra(mtime, atime, ctime time.Time) []byte {
	const epochOffset = 116444736000000000
	filetime := func(t time.Time) uint64 { return uint64(t.Unix())*10000000 + epochOffset }

	data := make([]byte, 32)
	binary.LittleEndian.PutUint16(data[4:6], 0x0001)
	binary.LittleEndian.PutUint16(data[6:8], 24)
	binary.LittleEndian.PutUint64(data[8:16], filetime(mtime))
	binary.LittleEndian.PutUint64(data[16:24], filetime(atime))
	binary.LittleEndian.PutUint64(data[24:32], filetime(ctime))
	return extraField(NTFSFieldTag, data)
}

func TestEntry_Mode(t *testing.T) {
	unix := uint16(sys.HostSystemUNIX) << 8
	ntfs := uint16(sys.HostSystemNTFS) << 8

	tests := []struct {
		name  string
		entry Entry
		want  fs.FileMode
	}{
		{"UnixRegular", Entry{VersionMadeBy: unix, ExternalAttrs: (sys.S_IFREG | 0755) << 16}, 0755},
		{"UnixSymlink", Entry{VersionMadeBy: unix, ExternalAttrs: (sys.S_IFLNK | 0777) << 16}, fs.ModeSymlink | 0777},
		{"UnixSetuid", Entry{VersionMadeBy: unix, ExternalAttrs: (sys.S_IFREG | sys.S_ISUID | 0755) << 16}, fs.ModeSetuid | 0755},
		{"UnixDir", Entry{VersionMadeBy: unix, ExternalAttrs: (sys.S_IFDIR | 0700) << 16, isDir: true}, fs.ModeDir | 0700},
		{"UnixWithoutMode", Entry{VersionMadeBy: unix}, 0644},
		{"WindowsReadOnly", Entry{VersionMadeBy: ntfs, ExternalAttrs: sys.DOSReadOnly}, 0444},
		{"WindowsDir", Entry{VersionMadeBy: ntfs, ExternalAttrs: sys.DOSDirectory, isDir: true}, fs.ModeDir | 0755},
		{"FAT", Entry{}, 0644},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Mode())
		})
	}
}

func TestEntry_ModTime(t *testing.T) {
	dosDate, dosTime := timeToMsDos(fixtureTime)
	unixTime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	ntfsTime := time.Date(2019, 8, 9, 10, 11, 12, 0, time.UTC)

	stamp := make([]byte, 5)
	stamp[0] = 0x01
	binary.LittleEndian.PutUint32(stamp[1:], uint32(unixTime.Unix()))

	t.Run("DOS", func(t *testing.T) {
		e := Entry{ModifiedDate: dosDate, ModifiedTime: dosTime}
		assert.Equal(t, fixtureTime, e.ModTime())
	})

	t.Run("ExtendedTimestamp", func(t *testing.T) {
		e := Entry{ModifiedDate: dosDate, ModifiedTime: dosTime, Extra: append(extraField(ExtendedTimestampTag, stamp), ntfsExtra(ntfsTime, ntfsTime, ntfsTime)...)}
		assert.Equal(t, unixTime, e.ModTime())
	})

	t.Run("NTFS", func(t *testing.T) {
		e := Entry{ModifiedDate: dosDate, ModifiedTime: dosTime, Extra: ntfsExtra(ntfsTime, ntfsTime, ntfsTime)}
		assert.Equal(t, ntfsTime, e.ModTime())
		assert.True(t, e.HasExtraField(NTFSFieldTag))
		assert.Len(t, e.GetExtraField(NTFSFieldTag), 32)
	})
}

func TestEntry_FsTime(t *testing.T) {
	m := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	a := m.Add(time.Hour)
	c := m.Add(-time.Hour)

	e := Entry{Extra: ntfsExtra(m, a, c)}
	mtime, atime, ctime := e.FsTime()
	assert.Equal(t, m, mtime)
	assert.Equal(t, a, atime)
	assert.Equal(t, c, ctime)

	mtime, _, _ = (&Entry{}).FsTime()
	assert.True(t, mtime.IsZero())
}

func TestEntry_Key(t *testing.T) {
	for raw, want := range map[string]string{
		"a.txt":         "a.txt",
		"dir/":          "dir",
		"/abs/path.txt": "abs/path.txt",
		`win\dir\f.txt`: "win/dir/f.txt",
		"a//b/./c":      "a/b/c",
		"../up.txt":     "../up.txt",
	} {
		e := Entry{Name: raw}
		assert.Equal(t, want, e.Key(), raw)
	}
}

func TestEntry_IsEncrypted(t *testing.T) {
	assert.True(t, (&Entry{Flags: 0x1}).IsEncrypted())
	assert.False(t, (&Entry{Flags: 0x8}).IsEncrypted())
}

func TestLocalFileHeader(t *testing.T) {
	dosDate, dosTime := timeToMsDos(fixtureTime)
	h := LocalFileHeader{Name: `dir\file.txt`, Flags: 0x8, ModifiedDate: dosDate, ModifiedTime: dosTime}

	assert.Equal(t, "dir/file.txt", h.Key())
	assert.True(t, h.HasDataDescriptor())
	assert.Equal(t, fixtureTime, h.ModTime())
}
