// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Zstandard levels following the reference implementation numbering.
const (
	ZstdMinLevel     = 1
	ZstdDefaultLevel = 3
	ZstdMaxLevel     = 22
)

// ZstdCodec implements method 93. Whole-buffer operations share one encoder
// and one decoder, both safe for concurrent use.
type ZstdCodec struct {
	level int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstdCodec creates a codec for a level between ZstdMinLevel and ZstdMaxLevel.
func NewZstdCodec(level int) (*ZstdCodec, error) {
	if level < ZstdMinLevel || level > ZstdMaxLevel {
		return nil, fmt.Errorf("%w: zstd level %d outside [%d, %d]", ErrInvalidLevel, level, ZstdMinLevel, ZstdMaxLevel)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &ZstdCodec{level: level, enc: enc, dec: dec}, nil
}

func (z *ZstdCodec) Method() CompressionMethod { return ZStandard }

// Level returns the compression level the codec was built with.
func (z *ZstdCodec) Level() int { return z.level }

func (z *ZstdCodec) Compress(src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, nil), nil
}

func (z *ZstdCodec) Expand(src []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

func (z *ZstdCodec) ExpandStream(dst io.Writer, src io.Reader) (int64, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return 0, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()

	n, err := io.Copy(dst, dec)
	if err != nil {
		return n, fmt.Errorf("zstd: %w", err)
	}
	return n, nil
}

// Close releases the shared encoder and decoder.
func (z *ZstdCodec) Close() error {
	z.dec.Close()
	return z.enc.Close()
}
