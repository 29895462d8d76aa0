// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse implements a growable memory image in which every byte is
// either defined (explicitly written by some source) or undefined (a gap
// filled with the fill byte).
package sparse

import (
	"errors"
	"iter"
)

// MaxLen is the maximum length of an image. Any operation that would grow
// the image beyond it fails with ErrTooLarge.
const MaxLen = 16 << 20

var ErrTooLarge = errors.New("sparse: image too large")

// Image is a byte sequence with a parallel defined mask of the same length.
//
// The slices returned by Data and Mask remain valid only until the next
// operation that grows the image. Use Byte and Defined to access the image
// by offset.
type Image struct {
	data []byte
	mask []bool
	fill byte
}

// New returns an empty image. The capHint is the expected length of the
// image, fill is the value of undefined bytes.
func New(capHint int, fill byte) *Image {
	if capHint < 0 || capHint > MaxLen {
		capHint = 0
	}
	return &Image{
		data: make([]byte, 0, capHint),
		mask: make([]bool, 0, capHint),
		fill: fill,
	}
}

func (m *Image) Len() int { return len(m.data) }

// Fill returns the value of undefined bytes.
func (m *Image) Fill() byte { return m.fill }

func (m *Image) Data() []byte { return m.data }
func (m *Image) Mask() []bool { return m.mask }

// Byte returns the byte at offset i.
func (m *Image) Byte(i int) byte { return m.data[i] }

// Defined reports whether the byte at offset i was explicitly set. Offsets
// beyond the end of the image are undefined.
func (m *Image) Defined(i int) bool {
	return i >= 0 && i < len(m.mask) && m.mask[i]
}

// DefinedLen returns the number of defined bytes.
func (m *Image) DefinedLen() (n int) {
	for _, d := range m.mask {
		if d {
			n++
		}
	}
	return
}

func (m *Image) grow(n int) error {
	if n < 0 || n > MaxLen-len(m.data) {
		return ErrTooLarge
	}
	l := len(m.data)
	m.data = append(m.data, make([]byte, n)...)
	m.mask = append(m.mask, make([]bool, n)...)
	if m.fill != 0 {
		for i := l; i < len(m.data); i++ {
			m.data[i] = m.fill
		}
	}
	return nil
}

// Append appends p to the end of the image, marking the appended bytes as
// defined or undefined.
func (m *Image) Append(p []byte, defined bool) error {
	if len(p) > MaxLen-len(m.data) {
		return ErrTooLarge
	}
	m.data = append(m.data, p...)
	for range p {
		m.mask = append(m.mask, defined)
	}
	return nil
}

// Extend appends n undefined bytes equal to the fill byte.
func (m *Image) Extend(n int) error {
	return m.grow(n)
}

// Set writes p at offset off, growing the image if necessary, and marks the
// written range as defined. Earlier content of the range is overwritten.
func (m *Image) Set(off int, p []byte) error {
	if off < 0 || off > MaxLen || len(p) > MaxLen-off {
		return ErrTooLarge
	}
	if end := off + len(p); end > len(m.data) {
		if err := m.grow(end - len(m.data)); err != nil {
			return err
		}
	}
	copy(m.data[off:], p)
	for i := range p {
		m.mask[off+i] = true
	}
	return nil
}

// Run is a contiguous range of defined bytes. Data aliases the image.
type Run struct {
	Addr int
	Data []byte
}

// Runs returns the maximal contiguous runs of defined bytes in the
// ascending address order. Runs longer than max bytes are split into
// consecutive chunks of max bytes (the last one may be shorter). If max <= 0
// the runs are not split.
func (m *Image) Runs(max int) iter.Seq[Run] {
	return func(yield func(Run) bool) {
		i, n := 0, len(m.mask)
		for i < n {
			if !m.mask[i] {
				i++
				continue
			}
			start := i
			for i < n && m.mask[i] {
				i++
			}
			for a := start; a < i; {
				e := i
				if max > 0 && e-a > max {
					e = a + max
				}
				if !yield(Run{a, m.data[a:e]}) {
					return
				}
				a = e
			}
		}
	}
}

// Equal reports whether m and o define the same set of offsets with the same
// values. Undefined bytes, including trailing ones, are not compared.
func (m *Image) Equal(o *Image) bool {
	n := max(len(m.mask), len(o.mask))
	for i := 0; i < n; i++ {
		d := m.Defined(i)
		if d != o.Defined(i) {
			return false
		}
		if d && m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
