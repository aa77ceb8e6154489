// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipindex/internal"
)

func TestOrderedIndex(t *testing.T) {
	x := newOrderedIndex[int]()

	assert.False(t, x.put("b", 1))
	assert.False(t, x.put("a", 2))
	assert.False(t, x.put("c", 3))
	assert.True(t, x.put("b", 4))

	assert.Equal(t, 3, x.len())
	assert.Equal(t, []string{"a", "b", "c"}, x.keys)
	assert.Equal(t, []int{2, 4, 3}, x.list())

	v, ok := x.get("b")
	assert.True(t, ok)
	assert.Equal(t, 4, v)

	_, ok = x.get("z")
	assert.False(t, ok)
}

func TestIndexArchive(t *testing.T) {
	f := newFixture(t).store("b.txt", "b").store("a/c.txt", "c").dir("a/")
	data := f.bytes()
	end, err := DecodeEOCD(bytes.NewReader(data))
	require.NoError(t, err)

	t.Run("FromDirectoryOffset", func(t *testing.T) {
		idx, err := IndexArchive(bytes.NewReader(data), int64(end.CentralDirOffset))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "a/c.txt", "b.txt"}, idx.Keys())
	})

	t.Run("FromStart", func(t *testing.T) {
		idx, err := IndexArchive(bytes.NewReader(data), 0)
		require.NoError(t, err)
		assert.Equal(t, 3, idx.Len())
	})

	t.Run("NegativeHint", func(t *testing.T) {
		idx, err := IndexArchive(bytes.NewReader(data), -5)
		require.NoError(t, err)
		assert.Equal(t, 3, idx.Len())
	})

	t.Run("PastDirectory", func(t *testing.T) {
		idx, err := IndexArchive(bytes.NewReader(data), end.Offset)
		require.NoError(t, err)
		assert.Zero(t, idx.Len())
	})
}

func TestIndexArchive_TruncatedRecordAborts(t *testing.T) {
	data := newFixture(t).store("a", "1").withoutEOCD()
	data = append(data, 0x50, 0x4b, 0x01, 0x02, 0x14, 0x00)

	_, err := IndexArchive(bytes.NewReader(data), 0)
	require.ErrorIs(t, err, ErrInvalidEntry)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.EqualValues(t, len(data)-6, entryErr.Offset)
}

func TestIndexArchive_StrictFilenames(t *testing.T) {
	data := newFixture(t).store("caf\x82.txt", "x").bytes()

	_, err := IndexArchive(bytes.NewReader(data), 0)
	require.ErrorIs(t, err, ErrInvalidUTF8)
	assert.Equal(t, CodeInvalidUTF8, Code(err))

	idx, err := IndexArchive(bytes.NewReader(data), 0, WithFilenamePolicy(FilenameCP437))
	require.NoError(t, err)
	assert.Equal(t, []string{"café.txt"}, idx.Keys())
}

func TestZipIndex_Queries(t *testing.T) {
	r := openBytes(t, newFixture(t).
		dir("logs/").
		store("logs/error.log", "e").
		store("var/logs/access.log", "a").
		store("readme.md", "r").
		store(`win\path.txt`, "w").
		bytes())
	idx := r.Index()

	assert.Equal(t, []string{"logs", "logs/error.log", "readme.md", "var/logs/access.log", "win/path.txt"}, idx.Keys())

	e, ok := idx.Get("/logs/error.log")
	require.True(t, ok)
	assert.Equal(t, "logs/error.log", e.Name)

	_, ok = idx.Get(`win\path.txt`)
	assert.True(t, ok)

	_, ok = idx.Get("Readme.md")
	assert.False(t, ok, "lookups are case-sensitive")

	assert.Len(t, idx.Files(), 4)
	require.Len(t, idx.Dirs(), 1)
	assert.Equal(t, "logs/", idx.Dirs()[0].Name)

	matches, err := idx.Glob("logs/*.log")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "logs/error.log", matches[0].Key())

	matches, err = idx.Glob("readme.md")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = idx.Glob("[")
	assert.Error(t, err)

	matches, err = idx.Find("*.log")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	assert.True(t, idx.hasDescendants("var"))
	assert.True(t, idx.hasDescendants("var/logs"))
	assert.False(t, idx.hasDescendants("readme.md"))
	assert.False(t, idx.hasDescendants("va"))
}

func TestWalk_LimitStopsAtTrailer(t *testing.T) {
	// A central directory record stored as payload after the trailer offset
	// must not be indexed when the walk is bounded.
	decoy := internal.CentralDirectory{Filename: "decoy.txt"}.Encode()
	f := newFixture(t).store("real.txt", "r")
	data := f.bytes()
	end, err := DecodeEOCD(bytes.NewReader(data))
	require.NoError(t, err)

	data = append(data, decoy...)
	idx, records, err := newDecoder(newConfig(nil)).walk(bytes.NewReader(data), 0, end.Offset)
	require.NoError(t, err)
	assert.Equal(t, 1, records)
	assert.Equal(t, []string{"real.txt"}, idx.Keys())
}
