// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*zipFS)(nil)
	_ fs.StatFS    = (*zipFS)(nil)
	_ fs.ReadDirFS = (*zipFS)(nil)
)

// FS returns a read-only view of the archive as an fs.FS. File contents are
// decoded with the supplied codec matching each entry's method; StoredCodec
// is always available. Directories implied by nested paths are listed even
// when the archive holds no entry for them.
func (r *Reader) FS(codecs ...Codec) fs.FS {
	return &zipFS{r: r, codecs: newCodecSet(codecs), supplied: codecs}
}

type zipFS struct {
	r        *Reader
	codecs   codecSet
	supplied []Codec
}

// Open implements fs.FS.
func (zfs *zipFS) Open(name string) (fs.File, error) {
	info, err := zfs.stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if info.IsDir() {
		return &fsDir{info: info, fs: zfs}, nil
	}

	e := info.(entryInfo).e
	codec, err := zfs.codecs.lookup(e, zfs.supplied)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	rc, err := zfs.r.openEntry(e, codec)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{info: info, rc: rc}, nil
}

// Stat implements fs.StatFS.
func (zfs *zipFS) Stat(name string) (fs.FileInfo, error) {
	info, err := zfs.stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

// ReadDir implements fs.ReadDirFS.
func (zfs *zipFS) ReadDir(name string) ([]fs.DirEntry, error) {
	info, err := zfs.stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return zfs.children(name), nil
}

// stat resolves the root, indexed entries and implicit directories.
func (zfs *zipFS) stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if err := zfs.r.checkOpen(); err != nil {
		return nil, err
	}

	if name == "." {
		return dirInfo{name: "."}, nil
	}
	// Names are exact keys; normalization is left to ZipIndex.Get.
	if e, ok := zfs.r.index.entries.get(name); ok {
		return entryInfo{e}, nil
	}
	if zfs.r.index.hasDescendants(name) {
		return dirInfo{name: name}, nil
	}
	return nil, fs.ErrNotExist
}

// children lists the direct children of dir in lexical order.
func (zfs *zipFS) children(dir string) []fs.DirEntry {
	prefix := ""
	if dir != "." {
		prefix = dir + "/"
	}

	keys := zfs.r.index.entries.keys
	i, _ := slices.BinarySearch(keys, prefix)

	var out []fs.DirEntry
	seen := make(map[string]bool)
	for ; i < len(keys) && strings.HasPrefix(keys[i], prefix); i++ {
		child, _, nested := strings.Cut(keys[i][len(prefix):], "/")
		if child == "" || child == "." || child == ".." || seen[child] {
			continue
		}
		seen[child] = true

		childPath := prefix + child
		if e, ok := zfs.r.index.entries.get(childPath); ok && (!nested || e.IsDir()) {
			out = append(out, fs.FileInfoToDirEntry(entryInfo{e}))
		} else {
			out = append(out, fs.FileInfoToDirEntry(dirInfo{name: childPath}))
		}
	}

	slices.SortFunc(out, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// fsFile wraps the decoded content of a file entry to satisfy fs.File.
type fsFile struct {
	info fs.FileInfo
	rc   io.ReadCloser
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.rc.Read(b) }
func (f *fsFile) Close() error               { return f.rc.Close() }

// fsDir wraps a directory to satisfy fs.ReadDirFile.
type fsDir struct {
	info    fs.FileInfo
	fs      *zipFS
	entries []fs.DirEntry
	offset  int
	listed  bool
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fs.ErrInvalid}
}

// ReadDir pages through the children of the directory.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		name := "."
		switch info := d.info.(type) {
		case dirInfo:
			name = info.name
		case entryInfo:
			name = info.e.Key()
		}
		d.entries = d.fs.children(name)
		d.listed = true
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}

	n = min(n, len(rest))
	d.offset += n
	return rest[:n], nil
}

// entryInfo exposes an indexed entry as fs.FileInfo.
type entryInfo struct{ e *Entry }

func (i entryInfo) Name() string       { return path.Base(i.e.Key()) }
func (i entryInfo) Size() int64        { return int64(i.e.UncompressedSize) }
func (i entryInfo) Mode() fs.FileMode  { return i.e.Mode() }
func (i entryInfo) ModTime() time.Time { return i.e.ModTime() }
func (i entryInfo) IsDir() bool        { return i.e.IsDir() }
func (i entryInfo) Sys() any           { return i.e }

// dirInfo describes the root or a directory only implied by nested paths.
type dirInfo struct{ name string }

func (i dirInfo) Name() string       { return path.Base(i.name) }
func (i dirInfo) Size() int64        { return 0 }
func (i dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0755 }
func (i dirInfo) ModTime() time.Time { return time.Time{} }
func (i dirInfo) IsDir() bool        { return true }
func (i dirInfo) Sys() any           { return nil }
