// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bin

import (
	"bytes"
	"testing"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
)

func TestRoundTrip(t *testing.T) {
	for _, p := range [][]byte{
		{},
		{0},
		{1, 2, 3, 4, 5},
		bytes.Repeat([]byte{0xa5, 0x5a}, 3000),
	} {
		m, err := Decode(p)
		if err != nil {
			t.Fatal(err)
		}
		if m.DefinedLen() != len(p) {
			t.Errorf("%d bytes: %d defined", len(p), m.DefinedLen())
		}
		out, err := Encode(m, 0, m.Len())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, p) {
			t.Errorf("%d bytes: round trip mismatch", len(p))
		}
		if m1, _ := Decode(out); !m1.Equal(m) {
			t.Errorf("%d bytes: decoded images differ", len(p))
		}
	}
}

func TestEncodeSparse(t *testing.T) {
	m := sparse.New(0, 0)
	m.Set(2, []byte{7, 8})
	m.Set(6, []byte{9})
	out, err := Encode(m, 0, m.Len())
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 7, 8, 0, 0, 9}
	if !bytes.Equal(out, want) {
		t.Errorf("got %x, want %x", out, want)
	}
	out, err = Encode(m, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{8, 0}) {
		t.Errorf("got %x, want 0800", out)
	}
	if _, err := Encode(m, 5, 3); err == nil {
		t.Error("range outside the image must fail")
	}
}
