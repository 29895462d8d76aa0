// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bin converts between raw binary images and sparse images.
package bin

import (
	"fmt"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
)

// Decode returns the image of p. All bytes of the image are defined.
func Decode(p []byte) (*sparse.Image, error) {
	m := sparse.New(len(p), 0)
	if err := m.Append(p, true); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode returns n bytes of the image starting from offset off. The bytes
// are returned regardless of whether they are defined or not, so the gaps
// contain the fill byte.
func Encode(m *sparse.Image, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > m.Len() {
		return nil, fmt.Errorf(
			"bin: range %#x+%d outside the image (%d bytes)", off, n, m.Len(),
		)
	}
	buf := make([]byte, n)
	copy(buf, m.Data()[off:off+n])
	return buf, nil
}
