// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSignature is returned when a signature scan reaches the end of the stream.
	ErrNoSignature = errors.New("zip: signature not found")

	// ErrInvalidSignature is matched by every *SignatureError.
	ErrInvalidSignature = errors.New("zip: invalid signature")

	// ErrInvalidEntry is matched by every *EntryError.
	ErrInvalidEntry = errors.New("zip: invalid entry")
)

// SignatureError reports four bytes that do not match the magic value
// required at a record boundary.
type SignatureError struct {
	Offset int64
	Got    uint32
	Want   uint32
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("zip: invalid signature %#08x at offset %d, want %#08x", e.Got, e.Offset, e.Want)
}

func (e *SignatureError) Is(target error) bool { return target == ErrInvalidSignature }

// EntryError reports a record at Offset that could not be decoded,
// typically because the stream ended inside it.
type EntryError struct {
	Offset int64
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("zip: invalid entry at offset %d: %v", e.Offset, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

func (e *EntryError) Is(target error) bool { return target == ErrInvalidEntry }
