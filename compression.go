// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for a file in the ZIP archive
type CompressionMethod uint16

// Registered compression methods according to ZIP specification
const (
	Stored    CompressionMethod = 0  // No compression - file stored as-is
	Deflated  CompressionMethod = 8  // DEFLATE compression (most common)
	Deflate64 CompressionMethod = 9  // DEFLATE64(tm) enhanced compression
	BZIP2     CompressionMethod = 12 // BZIP2 compression (more efficient but slower compression)
	LZMA      CompressionMethod = 14 // LZMA compression (high compression ratio)
	ZStandard CompressionMethod = 93 // Zstandard compression (fastest decompression)
)

var methodNames = map[CompressionMethod]string{
	Stored:    "store",
	Deflated:  "deflate",
	Deflate64: "deflate64",
	BZIP2:     "bzip2",
	LZMA:      "lzma",
	ZStandard: "zstd",
}

func (m CompressionMethod) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", uint16(m))
}

// Compression levels for DEFLATE algorithm
const (
	DeflateHuffmanOnly = flate.HuffmanOnly        // Huffman coding only, no matching
	DeflateDefault     = flate.DefaultCompression // Library default
	DeflateNormal      = 6                        // Default compression level (good balance between speed and ratio)
	DeflateMaximum     = flate.BestCompression    // Maximum compression (best ratio, slowest speed)
	DeflateFast        = 3                        // Fast compression (lower ratio, faster speed)
	DeflateSuperFast   = flate.BestSpeed          // Super fast compression (lowest ratio, fastest speed)
)

// Codec is a compression method implementation supplied per call.
// Method must return the registered ZIP method code the codec implements.
type Codec interface {
	Method() CompressionMethod

	// Compress and Expand transform whole in-memory buffers.
	Compress(src []byte) ([]byte, error)
	Expand(src []byte) ([]byte, error)

	// ExpandStream decompresses src into dst without materializing the
	// payload and returns the number of bytes written.
	ExpandStream(dst io.Writer, src io.Reader) (int64, error)
}

// EntryExpander is implemented by codecs whose stream format depends on
// entry metadata, such as the declared uncompressed size. When a codec
// implements it, extraction calls ExpandEntry instead of ExpandStream.
type EntryExpander interface {
	ExpandEntry(dst io.Writer, src io.Reader, e *Entry) (int64, error)
}

// checkMethod fails fast when c cannot decode e.
func checkMethod(e *Entry, c Codec) error {
	if e.IsEncrypted() {
		return fmt.Errorf("%w: %s is encrypted", ErrAlgorithm, e.Name)
	}
	if c == nil {
		return fmt.Errorf("%w: no codec for %s", ErrAlgorithm, e.Method)
	}
	if c.Method() != e.Method {
		return &MethodMismatchError{Declared: e.Method, Supplied: c.Method()}
	}
	return nil
}

func expandEntry(c Codec, dst io.Writer, src io.Reader, e *Entry) (int64, error) {
	if ee, ok := c.(EntryExpander); ok {
		return ee.ExpandEntry(dst, src, e)
	}
	return c.ExpandStream(dst, src)
}

// codecSet selects a codec by method. Stored is always available.
type codecSet map[CompressionMethod]Codec

func newCodecSet(codecs []Codec) codecSet {
	set := codecSet{Stored: StoredCodec{}}
	for _, c := range codecs {
		if c != nil {
			set[c.Method()] = c
		}
	}
	return set
}

// lookup returns the codec for e. When a single non-stored codec was supplied
// and it does not match, the error names it as a mismatch.
func (s codecSet) lookup(e *Entry, supplied []Codec) (Codec, error) {
	if c, ok := s[e.Method]; ok {
		return c, checkMethod(e, c)
	}
	if len(supplied) == 1 && supplied[0] != nil {
		return nil, checkMethod(e, supplied[0])
	}
	return nil, fmt.Errorf("%w: no codec for %s", ErrAlgorithm, e.Method)
}

// StoredCodec implements the "Store" method (no compression)
type StoredCodec struct{}

func (StoredCodec) Method() CompressionMethod { return Stored }

func (StoredCodec) Compress(src []byte) ([]byte, error) { return bytes.Clone(src), nil }

func (StoredCodec) Expand(src []byte) ([]byte, error) { return bytes.Clone(src), nil }

func (StoredCodec) ExpandStream(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

// DeflateCodec implements the "Deflate" method with memory pooling
type DeflateCodec struct {
	level int
	pool  sync.Pool
}

// NewDeflateCodec creates a reusable codec for a specific level.
// Valid levels range from DeflateHuffmanOnly to DeflateMaximum.
func NewDeflateCodec(level int) (*DeflateCodec, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("%w: deflate level %d outside [%d, %d]", ErrInvalidLevel, level, flate.HuffmanOnly, flate.BestCompression)
	}
	d := &DeflateCodec{level: level}
	d.pool.New = func() any {
		w, _ := flate.NewWriter(io.Discard, level)
		return w
	}
	return d, nil
}

func (d *DeflateCodec) Method() CompressionMethod { return Deflated }

// Level returns the compression level the codec was built with.
func (d *DeflateCodec) Level() int { return d.level }

func (d *DeflateCodec) Compress(src []byte) ([]byte, error) {
	w := d.pool.Get().(*flate.Writer)
	defer d.pool.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)

	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *DeflateCodec) Expand(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.ExpandStream(&buf, bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *DeflateCodec) ExpandStream(dst io.Writer, src io.Reader) (int64, error) {
	r := flate.NewReader(src)
	defer r.Close()

	n, err := io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("inflate: %w", err)
	}
	return n, nil
}
