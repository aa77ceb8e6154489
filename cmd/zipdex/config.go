// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lemon4ksan/zipindex"
)

// Environment variables read after an optional .env file is loaded.
const (
	envConfig   = "ZIPDEX_CONFIG"
	envLogLevel = "ZIPDEX_LOG_LEVEL"
)

// Config is the on-disk configuration of the command.
type Config struct {
	EOCDScan    string      `yaml:"eocd_scan"`   // tail or forward
	Filenames   string      `yaml:"filenames"`   // strict, cp437 or lossy
	Directories string      `yaml:"directories"` // size or attributes
	Workers     int         `yaml:"workers"`
	LogLevel    string      `yaml:"log_level"`
	Codecs      CodecConfig `yaml:"codecs"`
}

// CodecConfig selects the parameters of the codecs offered to extraction.
type CodecConfig struct {
	DeflateLevel int `yaml:"deflate_level"`
	ZstdLevel    int `yaml:"zstd_level"`
	LZMADictCap  int `yaml:"lzma_dict_cap"`
}

func defaultConfig() Config {
	return Config{
		EOCDScan:    zipindex.ScanTail.String(),
		Filenames:   zipindex.FilenameStrict.String(),
		Directories: zipindex.DirBySize.String(),
		LogLevel:    "warning",
		Codecs: CodecConfig{
			DeflateLevel: zipindex.DeflateNormal,
			ZstdLevel:    zipindex.ZstdDefaultLevel,
			LZMADictCap:  zipindex.LZMADefaultDictCap,
		},
	}
}

// loadConfig reads the YAML file at path over the defaults. An empty path
// falls back to $ZIPDEX_CONFIG; no file at all yields the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(buf, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if lvl := os.Getenv(envLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func decodeConfig(buf []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// options translates the configuration into zipindex options.
func (c Config) options() ([]zipindex.Option, error) {
	var opts []zipindex.Option

	switch c.EOCDScan {
	case "", "tail":
		opts = append(opts, zipindex.WithEOCDScan(zipindex.ScanTail))
	case "forward":
		opts = append(opts, zipindex.WithEOCDScan(zipindex.ScanForward))
	default:
		return nil, fmt.Errorf("unknown eocd_scan %q", c.EOCDScan)
	}

	switch c.Filenames {
	case "", "strict":
		opts = append(opts, zipindex.WithFilenamePolicy(zipindex.FilenameStrict))
	case "cp437":
		opts = append(opts, zipindex.WithFilenamePolicy(zipindex.FilenameCP437))
	case "lossy":
		opts = append(opts, zipindex.WithFilenamePolicy(zipindex.FilenameLossy))
	default:
		return nil, fmt.Errorf("unknown filenames policy %q", c.Filenames)
	}

	switch c.Directories {
	case "", "size":
		opts = append(opts, zipindex.WithDirectoryRule(zipindex.DirBySize))
	case "attributes":
		opts = append(opts, zipindex.WithDirectoryRule(zipindex.DirByAttributes))
	default:
		return nil, fmt.Errorf("unknown directories rule %q", c.Directories)
	}

	return append(opts, zipindex.WithWorkers(c.Workers)), nil
}

// codecs builds one codec per supported method. The returned function
// releases codec resources.
func (c CodecConfig) codecs() ([]zipindex.Codec, func(), error) {
	deflate, err := zipindex.NewDeflateCodec(c.DeflateLevel)
	if err != nil {
		return nil, nil, err
	}
	lzma, err := zipindex.NewLZMACodec(c.LZMADictCap)
	if err != nil {
		return nil, nil, err
	}
	zstd, err := zipindex.NewZstdCodec(c.ZstdLevel)
	if err != nil {
		return nil, nil, err
	}

	release := func() { zstd.Close() }
	return []zipindex.Codec{zipindex.StoredCodec{}, deflate, zstd, lzma}, release, nil
}
