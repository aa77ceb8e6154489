// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipindex"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(envConfig, "")
	t.Setenv(envLogLevel, "")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	name := filepath.Join(t.TempDir(), "zipdex.yaml")
	require.NoError(t, os.WriteFile(name, []byte(`
eocd_scan: forward
filenames: cp437
workers: 3
codecs:
  zstd_level: 19
`), 0644))

	t.Setenv(envConfig, name)
	t.Setenv(envLogLevel, "debug")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "forward", cfg.EOCDScan)
	assert.Equal(t, "cp437", cfg.Filenames)
	assert.Equal(t, "size", cfg.Directories)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 19, cfg.Codecs.ZstdLevel)
	assert.Equal(t, zipindex.DeflateNormal, cfg.Codecs.DeflateLevel)
}

func TestLoadConfig_UnknownField(t *testing.T) {
	name := filepath.Join(t.TempDir(), "zipdex.yaml")
	require.NoError(t, os.WriteFile(name, []byte("compression: max\n"), 0644))

	_, err := loadConfig(name)
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := defaultConfig()
	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Len(t, opts, 4)

	for _, bad := range []Config{
		{EOCDScan: "sideways"},
		{Filenames: "ebcdic"},
		{Directories: "guess"},
	} {
		_, err := bad.options()
		assert.Error(t, err)
	}
}

func TestCodecConfig_Codecs(t *testing.T) {
	codecs, release, err := defaultConfig().Codecs.codecs()
	require.NoError(t, err)
	defer release()

	var methods []zipindex.CompressionMethod
	for _, c := range codecs {
		methods = append(methods, c.Method())
	}
	assert.Equal(t, []zipindex.CompressionMethod{zipindex.Stored, zipindex.Deflated, zipindex.ZStandard, zipindex.LZMA}, methods)

	_, _, err = CodecConfig{DeflateLevel: 42}.codecs()
	assert.ErrorIs(t, err, zipindex.ErrInvalidLevel)
}
