// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/zipindex/internal"
)

// Reader is an open, indexed archive. It exclusively owns its source and
// closes it on Close. The index is read-only, so every method is safe for
// concurrent use; each operation reads through its own section of the source.
type Reader struct {
	src    io.ReaderAt
	size   int64
	closer io.Closer
	closed atomic.Bool

	config Config
	dec    *decoder
	end    *EndOfCentralDirectory
	index  *ZipIndex
}

// Open opens the named archive file and indexes it.
func Open(name string, opts ...Option) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r, err := newReader(f, fi.Size(), f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewReader indexes src and takes ownership of it. If src implements
// io.Closer it is closed by Close. Sources that do not implement io.ReaderAt
// are read through a shared cursor guarded by a mutex.
func NewReader(src io.ReadSeeker, opts ...Option) (*Reader, error) {
	size, err := internal.StreamSize(src)
	if err != nil {
		return nil, fmt.Errorf("%w: stream size: %w", ErrIO, err)
	}

	ra, ok := src.(io.ReaderAt)
	if !ok {
		ra = &seekReaderAt{rs: src}
	}
	closer, _ := src.(io.Closer)

	return newReader(ra, size, closer, opts)
}

// NewReaderAt indexes size bytes of src. If src implements io.Closer it is
// closed by Close.
func NewReaderAt(src io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	closer, _ := src.(io.Closer)
	return newReader(src, size, closer, opts)
}

func newReader(src io.ReaderAt, size int64, closer io.Closer, opts []Option) (*Reader, error) {
	cfg := newConfig(opts)
	r := &Reader{
		src:    sourceReaderAt{ra: src},
		size:   size,
		closer: closer,
		config: cfg,
		dec:    newDecoder(cfg),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load locates the central directory and builds the index.
func (r *Reader) load() error {
	view := r.section()

	end, err := r.dec.eocd(view)
	if err != nil {
		return err
	}
	if end.DiskNumber != 0 || end.CentralDirDisk != 0 {
		return &FatalError{Code: CodeFatal, Msg: fmt.Sprintf("multi-volume archives are not supported (disk %d)", end.DiskNumber)}
	}

	idx, records, err := r.dec.walk(view, int64(min(end.CentralDirOffset, uint64(end.dirEnd))), end.dirEnd)
	if err != nil {
		return err
	}

	if uint64(records) != end.TotalEntries {
		r.dec.log.WithFields(logrus.Fields{
			"declared": end.TotalEntries,
			"decoded":  records,
		}).Warn("central directory record count differs from end of central directory")
	}

	r.end = end
	r.index = idx
	return nil
}

// section returns an independent seekable view over the whole source.
func (r *Reader) section() *io.SectionReader {
	return io.NewSectionReader(r.src, 0, r.size)
}

// Close releases the source. Subsequent calls return nil.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) checkOpen() error {
	if r.closed.Load() {
		return ErrClosed
	}
	return nil
}

// IsZip64 reports whether the archive trailer was read from a Zip64 record.
func (r *Reader) IsZip64() bool { return r.end.Zip64 }

// Size returns the length of the source in bytes.
func (r *Reader) Size() int64 { return r.size }

// Comment returns the archive comment.
func (r *Reader) Comment() string { return r.end.Comment }

// EndOfCentralDirectory returns a copy of the archive trailer.
func (r *Reader) EndOfCentralDirectory() EndOfCentralDirectory { return *r.end }

// Index returns the archive index.
func (r *Reader) Index() *ZipIndex { return r.index }

// List returns every entry in lexical path order.
// Repeated calls return the same entries in the same order.
func (r *Reader) List() []*Entry { return r.index.Entries() }

// Entry returns the entry indexed under name.
func (r *Reader) Entry(name string) (*Entry, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	e, ok := r.index.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return e, nil
}

// LocalHeader decodes the local file header of the named entry.
// The header is re-read on every call.
func (r *Reader) LocalHeader(name string) (*LocalFileHeader, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	return r.localHeader(e)
}

func (r *Reader) localHeader(e *Entry) (*LocalFileHeader, error) {
	h, err := r.dec.localHeader(r.section(), int64(e.LocalHeaderOffset))
	if err != nil {
		return nil, fmt.Errorf("local header of %s: %w", e.Name, err)
	}
	if h.rawName != e.rawName {
		r.dec.log.WithFields(logrus.Fields{
			"central": e.Name,
			"local":   h.Name,
		}).Warn("local file header name differs from central directory")
	}
	return h, nil
}

// RawBytes returns the stored, still compressed payload of the named entry.
func (r *Reader) RawBytes(name string) ([]byte, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	return r.rawBytes(e)
}

func (r *Reader) rawBytes(e *Entry) ([]byte, error) {
	h, err := r.localHeader(e)
	if err != nil {
		return nil, err
	}
	return readPayload(r.section(), h.DataOffset, e.CompressedSize)
}

// payload returns a bounded reader over the stored bytes of e.
func (r *Reader) payload(e *Entry) (*io.SectionReader, error) {
	h, err := r.localHeader(e)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(h.DataOffset, e.CompressedSize, r.size); err != nil {
		return nil, err
	}
	return io.NewSectionReader(r.src, h.DataOffset, int64(e.CompressedSize)), nil
}

// OpenEntry returns a reader of the decompressed content of the named entry.
// Close reports ErrChecksum or ErrSizeMismatch when the content does not
// match the central directory.
func (r *Reader) OpenEntry(name string, codec Codec) (io.ReadCloser, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	return r.openEntry(e, codec)
}

func (r *Reader) openEntry(e *Entry, codec Codec) (io.ReadCloser, error) {
	if e.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, e.Name)
	}
	if codec == nil {
		codec = StoredCodec{}
	}
	if err := checkMethod(e, codec); err != nil {
		return nil, err
	}

	src, err := r.payload(e)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := expandEntry(codec, pw, src, e)
		pw.CloseWithError(err)
	}()

	return &checksumReader{
		rc:   pr,
		hash: crc32.NewIEEE(),
		want: e.CRC32,
		size: e.UncompressedSize,
	}, nil
}

// readPayload reads size bytes at off after checking they lie within r.
func readPayload(r io.ReadSeeker, off int64, size uint64) ([]byte, error) {
	total, err := internal.StreamSize(r)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(off, size, total); err != nil {
		return nil, err
	}

	if err := internal.SeekTo(r, off); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return buf, nil
}

func checkBounds(off int64, size uint64, total int64) error {
	if off < 0 || off > total || size > uint64(total-off) {
		return &EntryError{Offset: off, Err: fmt.Errorf("payload of %d bytes exceeds stream: %w", size, io.ErrUnexpectedEOF)}
	}
	return nil
}

// checksumReader wraps an io.ReadCloser to verify CRC32 checksum and size during reading.
// It ensures data integrity by comparing computed hash with expected value upon closing.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
	read uint64
	size uint64
}

// Read implements io.Reader interface while calculating CRC32 and tracking bytes read
func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if n > 0 {
		cr.read += uint64(n)
		if cr.read > cr.size {
			return n, ErrSizeMismatch
		}
		cr.hash.Write(p[:n])
	}
	return n, err
}

// Close implements io.Closer interface and verifies CRC32 and size after reading completes
func (cr *checksumReader) Close() error {
	defer cr.rc.Close()

	if cr.read != cr.size {
		return fmt.Errorf("%w: read %d, want %d", ErrSizeMismatch, cr.read, cr.size)
	}

	if got := cr.hash.Sum32(); got != cr.want {
		return fmt.Errorf("%w: got %x, want %x", ErrChecksum, got, cr.want)
	}
	return nil
}

// checksumWriter computes CRC32 and size of everything written through it.
type checksumWriter struct {
	w       io.Writer
	hash    hash.Hash32
	written uint64
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{w: w, hash: crc32.NewIEEE()}
}

func (cw *checksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.written += uint64(n)
	cw.hash.Write(p[:n])
	return n, err
}

// verify compares what was written against e.
func (cw *checksumWriter) verify(e *Entry) error {
	if cw.written != e.UncompressedSize {
		return fmt.Errorf("%w: wrote %d, want %d", ErrSizeMismatch, cw.written, e.UncompressedSize)
	}
	if got := cw.hash.Sum32(); got != e.CRC32 {
		return fmt.Errorf("%w: got %x, want %x", ErrChecksum, got, e.CRC32)
	}
	return nil
}
