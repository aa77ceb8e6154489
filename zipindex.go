// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipindex locates, indexes and extracts entries from ZIP archives
// without reading the stream sequentially, and tolerates archives whose
// structural metadata is missing, truncated or adversarial.
//
// # Indexing
//
// Opening an archive finds the End Of Central Directory record, walks the
// central directory it points at and builds a [ZipIndex], an ordered mapping
// from normalized path to [Entry]. The index is immutable for the lifetime
// of the [Reader].
//
//	r, err := zipindex.Open("archive.zip")
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
//	for _, e := range r.List() {
//		fmt.Println(e.Name, e.UncompressedSize)
//	}
//
// # Recovery
//
// Damaged archives can be indexed with [IntensiveIndexArchive], which merges
// a central directory walk with an exhaustive scan for local file headers.
// Entries found only through their local header carry a higher risk of being
// false positives and are reported as [*LocalFileHeader] values.
//
// # Codecs
//
// Decompression is never implicit. Every extracting call takes a [Codec]
// whose method must match the entry, otherwise it fails with
// [*MethodMismatchError] before any byte is written.
//
//	deflate, _ := zipindex.NewDeflateCodec(zipindex.DeflateNormal)
//	err = r.ExtractAll("out", zipindex.StoredCodec{}, deflate)
//
// # Error codes
//
// Every error maps to a stable small integer through [Code], suitable for
// reporting across process or language boundaries.
package zipindex

import (
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// EOCDScan selects how the End Of Central Directory record is located.
type EOCDScan int

const (
	// ScanTail searches the trailing 64KiB of the stream backward and
	// accepts the last record whose comment fits the stream.
	ScanTail EOCDScan = iota

	// ScanForward accepts the first signature found from the start of the stream.
	ScanForward
)

func (s EOCDScan) String() string {
	switch s {
	case ScanTail:
		return "tail"
	case ScanForward:
		return "forward"
	}
	return "unknown"
}

// DirectoryRule selects how an entry is classified as a directory.
type DirectoryRule int

const (
	// DirBySize treats entries with zero uncompressed size as directories.
	DirBySize DirectoryRule = iota

	// DirByAttributes uses a trailing slash, the DOS directory bit or the
	// Unix S_IFDIR type. Empty regular files stay files under this rule.
	DirByAttributes
)

func (d DirectoryRule) String() string {
	switch d {
	case DirBySize:
		return "size"
	case DirByAttributes:
		return "attributes"
	}
	return "unknown"
}

// Config defines the parameters shared by decoding, indexing and extraction.
type Config struct {
	// EOCDScan selects the End Of Central Directory search. Default: ScanTail.
	EOCDScan EOCDScan

	// Filenames decides how filename bytes are turned into strings.
	// Default: FilenameStrict.
	Filenames FilenamePolicy

	// Directories decides which entries are directories. Default: DirBySize.
	Directories DirectoryRule

	// Workers bounds the number of entries extracted concurrently.
	// Default: GOMAXPROCS.
	Workers int

	// Fs is the destination filesystem for extraction. Default: the OS filesystem.
	Fs afero.Fs

	// Logger receives debug records and recovery warnings. Default: discarded.
	Logger logrus.FieldLogger

	// OnEntryExtracted is called after every extracted entry.
	// WARNING: During ExtractAll this is called concurrently.
	OnEntryExtracted func(*Entry, error)
}

// Option is a functional option for configuring a Reader or a decode call.
type Option func(c *Config)

// WithEOCDScan selects how the End Of Central Directory record is located.
func WithEOCDScan(s EOCDScan) Option {
	return func(c *Config) { c.EOCDScan = s }
}

// WithFilenamePolicy selects how filename bytes are decoded.
func WithFilenamePolicy(p FilenamePolicy) Option {
	return func(c *Config) { c.Filenames = p }
}

// WithDirectoryRule selects how directory entries are recognized.
func WithDirectoryRule(d DirectoryRule) Option {
	return func(c *Config) { c.Directories = d }
}

// WithWorkers sets the number of concurrent extraction workers.
// Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithFs sets the destination filesystem used by extraction.
func WithFs(fsys afero.Fs) Option {
	return func(c *Config) {
		if fsys != nil {
			c.Fs = fsys
		}
	}
}

// WithLogger enables logging through l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithOnEntryExtracted registers a callback invoked after each extracted entry.
func WithOnEntryExtracted(fn func(*Entry, error)) Option {
	return func(c *Config) { c.OnEntryExtracted = fn }
}

func newConfig(opts []Option) Config {
	c := Config{
		EOCDScan:    ScanTail,
		Filenames:   FilenameStrict,
		Directories: DirBySize,
		Workers:     runtime.GOMAXPROCS(0),
		Fs:          afero.NewOsFs(),
		Logger:      discardLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
