// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"io"
	"path"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/zipindex/internal"
)

// orderedIndex maps keys to values and iterates them in lexical key order.
// Inserting an existing key replaces its value.
type orderedIndex[V any] struct {
	keys   []string
	values map[string]V
}

func newOrderedIndex[V any]() *orderedIndex[V] {
	return &orderedIndex[V]{values: make(map[string]V)}
}

// put stores v under key and reports whether a previous value was replaced.
func (x *orderedIndex[V]) put(key string, v V) bool {
	if _, ok := x.values[key]; ok {
		x.values[key] = v
		return true
	}
	i, _ := slices.BinarySearch(x.keys, key)
	x.keys = slices.Insert(x.keys, i, key)
	x.values[key] = v
	return false
}

func (x *orderedIndex[V]) get(key string) (V, bool) {
	v, ok := x.values[key]
	return v, ok
}

func (x *orderedIndex[V]) len() int { return len(x.keys) }

func (x *orderedIndex[V]) list() []V {
	out := make([]V, len(x.keys))
	for i, k := range x.keys {
		out[i] = x.values[k]
	}
	return out
}

// ZipIndex is an ordered mapping from normalized path to Entry.
// It is immutable once built and safe for concurrent reads.
type ZipIndex struct {
	entries *orderedIndex[*Entry]
}

func newZipIndex() *ZipIndex {
	return &ZipIndex{entries: newOrderedIndex[*Entry]()}
}

// Len returns the number of distinct paths.
func (x *ZipIndex) Len() int { return x.entries.len() }

// Keys returns the normalized paths in lexical order.
func (x *ZipIndex) Keys() []string { return slices.Clone(x.entries.keys) }

// Get returns the entry for name. Name is case-sensitive and normalized to
// forward slashes without leading or trailing separators.
func (x *ZipIndex) Get(name string) (*Entry, bool) {
	return x.entries.get(normalizeName(name))
}

// Entries returns every entry in lexical path order.
func (x *ZipIndex) Entries() []*Entry { return x.entries.list() }

// Files returns the entries that are not directories.
func (x *ZipIndex) Files() []*Entry {
	return x.filter(func(e *Entry) bool { return !e.IsDir() })
}

// Dirs returns the directory entries.
func (x *ZipIndex) Dirs() []*Entry {
	return x.filter(func(e *Entry) bool { return e.IsDir() })
}

func (x *ZipIndex) filter(keep func(*Entry) bool) []*Entry {
	var out []*Entry
	for _, e := range x.entries.list() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Glob returns all entries whose keys match the specified shell pattern.
// Pattern syntax is identical to [path.Match].
func (x *ZipIndex) Glob(pattern string) ([]*Entry, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	if !hasMeta(pattern) {
		if e, ok := x.Get(pattern); ok {
			return []*Entry{e}, nil
		}
		return nil, nil
	}

	var matches []*Entry
	for _, key := range x.entries.keys {
		if matched, _ := path.Match(pattern, key); matched {
			matches = append(matches, x.entries.values[key])
		}
	}
	return matches, nil
}

// Find searches for entries matching the pattern in all directories.
// Unlike Glob, the pattern is matched against the base name only.
// Example: Find("*.log") matches "error.log" AND "var/logs/access.log".
func (x *ZipIndex) Find(pattern string) ([]*Entry, error) {
	pattern = strings.ReplaceAll(pattern, "\\", "/")

	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	var matches []*Entry
	for _, key := range x.entries.keys {
		if matched, _ := path.Match(pattern, path.Base(key)); matched {
			matches = append(matches, x.entries.values[key])
		}
	}
	return matches, nil
}

// hasDescendants reports whether some key lies below dir.
func (x *ZipIndex) hasDescendants(dir string) bool {
	prefix := dir + "/"
	i, _ := slices.BinarySearch(x.entries.keys, prefix)
	return i < len(x.entries.keys) && strings.HasPrefix(x.entries.keys[i], prefix)
}

// IndexArchive walks central directory records from hint to the end of r.
// Each step scans for the next record signature at or after the current
// position and continues after the decoded record. The walk ends cleanly
// when no further signature exists; any other failure aborts it.
func IndexArchive(r io.ReadSeeker, hint int64, opts ...Option) (*ZipIndex, error) {
	idx, _, err := newDecoder(newConfig(opts)).walk(newSourceReadSeeker(r), hint, -1)
	return idx, err
}

// walk indexes records whose signature lies in [hint, limit). A negative
// limit walks to the end of the stream. It also returns the number of
// records decoded, duplicates included.
func (d *decoder) walk(r io.ReadSeeker, hint, limit int64) (*ZipIndex, int, error) {
	idx := newZipIndex()
	records := 0

	for pos := max(hint, 0); ; {
		off, err := internal.FindSignature(r, internal.CentralDirectorySignature, pos, limit)
		if internal.IsNoSignature(err) {
			return idx, records, nil
		}
		if err != nil {
			return nil, records, err
		}

		e, err := d.entry(r, off)
		if err != nil {
			return nil, records, err
		}
		records++

		if idx.entries.put(e.Key(), e) {
			d.log.WithFields(logrus.Fields{
				"offset": off,
				"name":   e.Name,
			}).Warn("duplicate path in central directory, keeping the later entry")
		}
		pos = off + e.Len
	}
}
