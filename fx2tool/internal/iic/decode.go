// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iic

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
)

// Stream format errors.
var (
	ErrBadMarker       = errors.New("bad header marker")
	ErrTruncated       = errors.New("stream truncated before the last record")
	ErrMalformedRecord = errors.New("record length exceeds the stream")
)

// FormatError describes a malformed stream. Offset is the stream offset of
// the offending header or record.
type FormatError struct {
	Offset int
	Err    error
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("iic: offset %#x: %s", e.Offset, e.Err)
}

// Decode parses the boot record stream p and returns the image built from
// its records and the stream header. Decoding stops at the last record (or
// at a zero-length record), the remainder of p is ignored. Records may
// overlap, the last one wins. On any error no image is returned.
func Decode(p []byte) (*sparse.Image, Header, error) {
	var h Header
	if len(p) < HeaderSize {
		return nil, h, &FormatError{0, ErrTruncated}
	}
	marker := p[0]
	if marker != MarkerLoad && marker != MarkerNoLoad {
		return nil, h, &FormatError{
			0, fmt.Errorf("%w: %#02x", ErrBadMarker, marker),
		}
	}
	le := binary.LittleEndian
	h.Vendor = le.Uint16(p[1:])
	h.Product = le.Uint16(p[3:])
	h.Device = le.Uint16(p[5:])
	h.Config = p[7]
	m := sparse.New(1024, 0)
	if marker == MarkerNoLoad {
		return m, h, nil
	}
	be := binary.BigEndian
	for off := HeaderSize; ; {
		if len(p)-off < 4 {
			return nil, h, &FormatError{off, ErrTruncated}
		}
		length := be.Uint16(p[off:])
		addr := be.Uint16(p[off+2:])
		n := int(length & lenMask)
		if length&lastFlag != 0 || n == 0 {
			return m, h, nil
		}
		data := p[off+4:]
		if len(data) < n {
			return nil, h, &FormatError{
				off,
				fmt.Errorf(
					"%w: %d bytes at %#04x, %d left",
					ErrMalformedRecord, n, addr, len(data),
				),
			}
		}
		if err := m.Set(int(addr), data[:n]); err != nil {
			return nil, h, err
		}
		off += 4 + n
	}
}
