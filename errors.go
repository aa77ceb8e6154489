// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/lemon4ksan/zipindex/internal"
)

var (
	// ErrInvalidSignature is returned when four bytes at a record boundary
	// do not match the expected magic value.
	ErrInvalidSignature = internal.ErrInvalidSignature

	// ErrIO is matched by every failure of the underlying archive source.
	ErrIO = errors.New("zip: source i/o failure")

	// ErrEOCDNotFound is returned when the End Of Central Directory signature
	// cannot be found in the stream.
	ErrEOCDNotFound = errors.New("zip: end of central directory not found")

	// ErrEntryNotFound is returned when the requested path is not in the index.
	ErrEntryNotFound = errors.New("zip: entry not found")

	// ErrIsDirectory is returned when file content is requested from a directory entry.
	ErrIsDirectory = errors.New("zip: entry is a directory")

	// ErrInvalidEntry is returned when a record cannot be decoded,
	// typically because the stream ends inside it.
	ErrInvalidEntry = internal.ErrInvalidEntry

	// ErrAlgorithm is returned when no codec is available for a compression method.
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")

	// ErrMethodMismatch is matched by every *MethodMismatchError.
	ErrMethodMismatch = errors.New("zip: mismatched compression method")

	// ErrInvalidLevel is returned when a codec is built with an unsupported level.
	ErrInvalidLevel = errors.New("zip: invalid compression level")

	// ErrInvalidUTF8 is returned when a filename is not valid UTF-8 under FilenameStrict.
	ErrInvalidUTF8 = errors.New("zip: invalid utf-8 in filename")

	// ErrChecksum is returned when reading a file checksum does not match.
	ErrChecksum = errors.New("zip: checksum error")

	// ErrSizeMismatch is returned when the uncompressed size does not match the header.
	ErrSizeMismatch = errors.New("zip: uncompressed size mismatch")

	// ErrInsecurePath is returned when a file path is invalid or attempts directory traversal (Zip Slip).
	ErrInsecurePath = errors.New("zip: insecure file path")

	// ErrDestinationExists is returned instead of overwriting an existing path.
	ErrDestinationExists = fmt.Errorf("zip: destination already exists: %w", fs.ErrExist)

	// ErrDestinationMissing is returned when the destination directory does not exist.
	ErrDestinationMissing = fmt.Errorf("zip: destination directory does not exist: %w", fs.ErrNotExist)

	// ErrClosed is returned by operations on a closed Reader.
	ErrClosed = errors.New("zip: reader is closed")
)

// SignatureError reports the offset and values of a mismatched signature.
type SignatureError = internal.SignatureError

// EntryError reports the offset of a record that could not be decoded.
type EntryError = internal.EntryError

// MethodMismatchError is returned when the codec supplied for an entry does
// not implement the compression method the entry declares.
type MethodMismatchError struct {
	Declared CompressionMethod
	Supplied CompressionMethod
}

func (e *MethodMismatchError) Error() string {
	return fmt.Sprintf("zip: mismatched compression method: entry declares %s, codec supplies %s", e.Declared, e.Supplied)
}

func (e *MethodMismatchError) Is(target error) bool { return target == ErrMethodMismatch }

// FatalError carries conditions that fit no other kind.
type FatalError struct {
	Code int
	Msg  string
}

func (e *FatalError) Error() string { return "zip: " + e.Msg }

// Stable error codes returned by Code.
const (
	CodeOK               = 0
	CodeIO               = 1
	CodeInvalidSignature = 2
	CodeEOCDNotFound     = 3
	CodeEntryNotFound    = 4
	CodeInvalidEntry     = 5
	CodeMethod           = 6
	CodeInvalidLevel     = 7
	CodeInvalidUTF8      = 8
	CodeIntegrity        = 9
	CodeInsecurePath     = 10
	CodeClosed           = 11
	CodeFatal            = 255
)

var codeText = map[int]string{
	CodeOK:               "success",
	CodeIO:               "i/o failure",
	CodeInvalidSignature: "invalid signature",
	CodeEOCDNotFound:     "end of central directory not found",
	CodeEntryNotFound:    "entry not found",
	CodeInvalidEntry:     "invalid entry",
	CodeMethod:           "invalid or mismatched compression method",
	CodeInvalidLevel:     "invalid compression level",
	CodeInvalidUTF8:      "invalid utf-8",
	CodeIntegrity:        "checksum or size mismatch",
	CodeInsecurePath:     "insecure path",
	CodeClosed:           "reader closed",
	CodeFatal:            "fatal",
}

// Codes returns every stable code in ascending order.
func Codes() []int {
	return []int{
		CodeOK, CodeIO, CodeInvalidSignature, CodeEOCDNotFound, CodeEntryNotFound,
		CodeInvalidEntry, CodeMethod, CodeInvalidLevel, CodeInvalidUTF8,
		CodeIntegrity, CodeInsecurePath, CodeClosed, CodeFatal,
	}
}

// CodeText returns a short description of code.
func CodeText(code int) string {
	if s, ok := codeText[code]; ok {
		return s
	}
	return codeText[CodeFatal]
}

// Code maps err to a stable small integer. A nil error is CodeOK.
// Source failures come first. Decode failures are checked before the
// remaining I/O kinds because an *EntryError wraps the io.ErrUnexpectedEOF
// that caused it.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return fatal.Code
	}
	if errors.Is(err, ErrIO) {
		return CodeIO
	}

	switch {
	case errors.Is(err, ErrInvalidEntry):
		return CodeInvalidEntry
	case errors.Is(err, ErrInvalidSignature):
		return CodeInvalidSignature
	case errors.Is(err, ErrEOCDNotFound):
		return CodeEOCDNotFound
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrIsDirectory):
		return CodeEntryNotFound
	case errors.Is(err, ErrAlgorithm), errors.Is(err, ErrMethodMismatch):
		return CodeMethod
	case errors.Is(err, ErrInvalidLevel):
		return CodeInvalidLevel
	case errors.Is(err, ErrInvalidUTF8):
		return CodeInvalidUTF8
	case errors.Is(err, ErrChecksum), errors.Is(err, ErrSizeMismatch):
		return CodeIntegrity
	case errors.Is(err, ErrInsecurePath):
		return CodeInsecurePath
	case errors.Is(err, ErrClosed):
		return CodeClosed
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) {
		return CodeIO
	}
	return CodeFatal
}
