// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// LZMA entries carry a 4-byte prefix (SDK version, properties size) and the
// 5 property bytes; the classic stream header adds an 8-byte size instead.
const (
	lzmaPropsLen   = 5
	lzmaClassicLen = lzmaPropsLen + 8
	lzmaEOSFlag    = 1 << 1 // General purpose flag: stream ends with an EOS marker
)

var lzmaVersion = [2]byte{9, 20}

// LZMADefaultDictCap is the dictionary capacity used by NewLZMACodec callers
// that have no preference.
const LZMADefaultDictCap = 1 << 23

// LZMACodec implements method 14.
type LZMACodec struct {
	dictCap int
}

// NewLZMACodec creates a codec whose encoder uses the given dictionary capacity.
func NewLZMACodec(dictCap int) (*LZMACodec, error) {
	if dictCap < lzma.MinDictCap || dictCap > lzma.MaxDictCap {
		return nil, fmt.Errorf("%w: lzma dictionary capacity %d outside [%d, %d]", ErrInvalidLevel, dictCap, lzma.MinDictCap, lzma.MaxDictCap)
	}
	cfg := lzma.WriterConfig{DictCap: dictCap, EOSMarker: true}
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	return &LZMACodec{dictCap: dictCap}, nil
}

func (l *LZMACodec) Method() CompressionMethod { return LZMA }

// DictCap returns the dictionary capacity the codec was built with.
func (l *LZMACodec) DictCap() int { return l.dictCap }

// Compress produces a ZIP LZMA payload terminated by an EOS marker.
// Entries holding it must set general purpose bit 1.
func (l *LZMACodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{DictCap: l.dictCap, EOSMarker: true}

	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}

	classic := buf.Bytes()
	if len(classic) < lzmaClassicLen {
		return nil, fmt.Errorf("lzma: short stream header")
	}

	out := make([]byte, 0, 4+len(classic)-8)
	out = append(out, lzmaVersion[0], lzmaVersion[1], lzmaPropsLen, 0)
	out = append(out, classic[:lzmaPropsLen]...)
	return append(out, classic[lzmaClassicLen:]...), nil
}

func (l *LZMACodec) Expand(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := l.ExpandStream(&buf, bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExpandStream requires the stream to end with an EOS marker.
func (l *LZMACodec) ExpandStream(dst io.Writer, src io.Reader) (int64, error) {
	return l.expand(dst, src, -1)
}

// ExpandEntry uses the declared size unless the entry flags an EOS marker.
func (l *LZMACodec) ExpandEntry(dst io.Writer, src io.Reader, e *Entry) (int64, error) {
	size := int64(-1)
	if e.Flags&lzmaEOSFlag == 0 {
		size = int64(e.UncompressedSize)
	}
	return l.expand(dst, src, size)
}

func (l *LZMACodec) expand(dst io.Writer, src io.Reader, size int64) (int64, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(src, prefix[:]); err != nil {
		return 0, fmt.Errorf("lzma: read header: %w", err)
	}
	if n := binary.LittleEndian.Uint16(prefix[2:4]); n != lzmaPropsLen {
		return 0, fmt.Errorf("%w: lzma properties size %d", ErrAlgorithm, n)
	}

	header := make([]byte, lzmaClassicLen)
	if _, err := io.ReadFull(src, header[:lzmaPropsLen]); err != nil {
		return 0, fmt.Errorf("lzma: read properties: %w", err)
	}
	binary.LittleEndian.PutUint64(header[lzmaPropsLen:], uint64(size))

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), src))
	if err != nil {
		return 0, fmt.Errorf("lzma: %w", err)
	}

	n, err := io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("lzma: %w", err)
	}
	return n, nil
}
