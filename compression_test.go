// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecs_RoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	random := make([]byte, 32*1024)
	rnd.Read(random)

	inputs := map[string][]byte{
		"empty":  {},
		"text":   bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog. "), 500),
		"random": random,
	}
	codecs := []Codec{StoredCodec{}, mustDeflate(t), mustZstd(t), mustLZMA(t)}

	for _, c := range codecs {
		for name, in := range inputs {
			t.Run(c.Method().String()+"/"+name, func(t *testing.T) {
				compressed, err := c.Compress(in)
				require.NoError(t, err)

				out, err := c.Expand(compressed)
				require.NoError(t, err)
				assert.Equal(t, len(in), len(out))
				assert.True(t, bytes.Equal(in, out))

				var buf bytes.Buffer
				n, err := c.ExpandStream(&buf, bytes.NewReader(compressed))
				require.NoError(t, err)
				assert.EqualValues(t, len(in), n)
				assert.True(t, bytes.Equal(in, buf.Bytes()))
			})
		}
	}
}

func TestDeflateCodec_Levels(t *testing.T) {
	for _, level := range []int{DeflateHuffmanOnly, DeflateDefault, DeflateSuperFast, DeflateFast, DeflateNormal, DeflateMaximum} {
		c, err := NewDeflateCodec(level)
		require.NoError(t, err, "level %d", level)
		assert.Equal(t, level, c.Level())
		assert.Equal(t, Deflated, c.Method())
	}

	for _, level := range []int{-3, 10, 100} {
		_, err := NewDeflateCodec(level)
		require.ErrorIs(t, err, ErrInvalidLevel, "level %d", level)
		assert.Equal(t, CodeInvalidLevel, Code(err))
	}
}

func TestZstdCodec_Levels(t *testing.T) {
	for _, level := range []int{ZstdMinLevel, ZstdDefaultLevel, 9, ZstdMaxLevel} {
		c, err := NewZstdCodec(level)
		require.NoError(t, err, "level %d", level)
		assert.Equal(t, level, c.Level())
		assert.Equal(t, ZStandard, c.Method())
		require.NoError(t, c.Close())
	}

	for _, level := range []int{0, -1, 23} {
		_, err := NewZstdCodec(level)
		require.ErrorIs(t, err, ErrInvalidLevel, "level %d", level)
	}
}

func TestLZMACodec_DictCap(t *testing.T) {
	c, err := NewLZMACodec(1 << 16)
	require.NoError(t, err)
	assert.Equal(t, 1<<16, c.DictCap())
	assert.Equal(t, LZMA, c.Method())

	_, err = NewLZMACodec(16)
	require.ErrorIs(t, err, ErrInvalidLevel)
	assert.Equal(t, CodeInvalidLevel, Code(err))
}

func TestLZMACodec_PayloadHeader(t *testing.T) {
	compressed, err := mustLZMA(t).Compress([]byte("header"))
	require.NoError(t, err)

	require.Greater(t, len(compressed), 9)
	assert.Equal(t, []byte{9, 20, 5, 0}, compressed[:4])
}

func TestLZMACodec_ExpandEntryWithKnownSize(t *testing.T) {
	c := mustLZMA(t)
	in := bytes.Repeat([]byte("sized"), 300)
	compressed, err := c.Compress(in)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := c.ExpandEntry(&buf, bytes.NewReader(compressed), &Entry{Method: LZMA, UncompressedSize: uint64(len(in))})
	require.NoError(t, err)
	assert.EqualValues(t, len(in), n)
	assert.Equal(t, in, buf.Bytes())
}

func TestCorruptPayload(t *testing.T) {
	for _, c := range []Codec{mustDeflate(t), mustZstd(t), mustLZMA(t)} {
		t.Run(c.Method().String(), func(t *testing.T) {
			_, err := c.Expand([]byte{0xFF, 0xFE, 0xFD, 0xFC, 0xFB, 0xFA, 0xF9, 0xF8, 0xF7, 0xF6})
			assert.Error(t, err)
		})
	}
}

func TestCompressionMethod_String(t *testing.T) {
	assert.Equal(t, "store", Stored.String())
	assert.Equal(t, "deflate", Deflated.String())
	assert.Equal(t, "lzma", LZMA.String())
	assert.Equal(t, "zstd", ZStandard.String())
	assert.Equal(t, "method(99)", CompressionMethod(99).String())
}

func TestCheckMethod(t *testing.T) {
	e := &Entry{Name: "a", Method: Deflated}

	require.NoError(t, checkMethod(e, mustDeflate(t)))
	require.ErrorIs(t, checkMethod(e, nil), ErrAlgorithm)

	err := checkMethod(e, mustZstd(t))
	var mismatch *MethodMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, Deflated, mismatch.Declared)
	assert.Equal(t, ZStandard, mismatch.Supplied)
	require.ErrorIs(t, err, ErrMethodMismatch)

	encrypted := &Entry{Name: "secret", Method: Stored, Flags: 0x1}
	require.ErrorIs(t, checkMethod(encrypted, StoredCodec{}), ErrAlgorithm)
}

func TestCodecSet_Lookup(t *testing.T) {
	deflate := mustDeflate(t)
	zstd := mustZstd(t)

	set := newCodecSet([]Codec{deflate, nil})
	stored, err := set.lookup(&Entry{Method: Stored}, []Codec{deflate, nil})
	require.NoError(t, err)
	assert.Equal(t, StoredCodec{}, stored)

	got, err := set.lookup(&Entry{Method: Deflated}, []Codec{deflate})
	require.NoError(t, err)
	assert.Same(t, deflate, got)

	_, err = newCodecSet([]Codec{zstd}).lookup(&Entry{Method: Deflated}, []Codec{zstd})
	require.ErrorIs(t, err, ErrMethodMismatch)

	_, err = newCodecSet([]Codec{zstd, deflate}).lookup(&Entry{Method: LZMA}, []Codec{zstd, deflate})
	require.ErrorIs(t, err, ErrAlgorithm)
}
