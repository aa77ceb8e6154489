// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/lemon4ksan/zipindex/internal"
)

// FilenamePolicy decides how raw filename bytes become strings.
type FilenamePolicy int

const (
	// FilenameStrict requires valid UTF-8 and fails with ErrInvalidUTF8 otherwise.
	FilenameStrict FilenamePolicy = iota

	// FilenameCP437 decodes names without the UTF-8 flag that are not valid
	// UTF-8 as IBM code page 437, the legacy DOS encoding.
	FilenameCP437

	// FilenameLossy replaces invalid sequences with U+FFFD.
	FilenameLossy
)

func (p FilenamePolicy) String() string {
	switch p {
	case FilenameStrict:
		return "strict"
	case FilenameCP437:
		return "cp437"
	case FilenameLossy:
		return "lossy"
	}
	return "unknown"
}

// decodeName converts a raw filename according to the policy.
// flags is the general purpose bit flag of the record holding the name.
func (p FilenamePolicy) decodeName(raw string, flags uint16) (string, error) {
	if utf8.ValidString(raw) {
		return raw, nil
	}

	switch p {
	case FilenameCP437:
		if flags&internal.FlagUTF8 == 0 {
			return decodeCP437(raw), nil
		}
		return strings.ToValidUTF8(raw, string(utf8.RuneError)), nil
	case FilenameLossy:
		return strings.ToValidUTF8(raw, string(utf8.RuneError)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUTF8, raw)
}

// decodeComment never fails: comments are informational.
func (p FilenamePolicy) decodeComment(raw string, flags uint16) string {
	if s, err := p.decodeName(raw, flags); err == nil {
		return s
	}
	return strings.ToValidUTF8(raw, string(utf8.RuneError))
}

func decodeCP437(raw string) string {
	s, err := charmap.CodePage437.NewDecoder().String(raw)
	if err != nil {
		return strings.ToValidUTF8(raw, string(utf8.RuneError))
	}
	return s
}
